// internal/domain/order/errors.go
package order

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped with entity context by service methods; handlers map
// it to HTTP 404.
var ErrNotFound = errors.New("record not found")

// ValidationError rejects malformed input before any stock account is
// touched.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ReturnExceedsDispatchedError rejects a return larger than what was actually
// shipped and not yet returned for the line.
type ReturnExceedsDispatchedError struct {
	ItemID        uint `json:"item_id"`
	Requested     int  `json:"requested"`
	MaxReturnable int  `json:"max_returnable"`
}

func (e *ReturnExceedsDispatchedError) Error() string {
	return fmt.Sprintf("return exceeds dispatched for item %d: requested %d, max returnable %d",
		e.ItemID, e.Requested, e.MaxReturnable)
}

// VersionConflictError signals a stale edit: the caller's copy of the event
// was modified by someone else since it was fetched.
type VersionConflictError struct {
	Entity   string `json:"entity"`
	ID       uint   `json:"id"`
	Expected int    `json:"expected_version"`
	Actual   int    `json:"actual_version"`
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s %d was modified concurrently: expected version %d, found %d",
		e.Entity, e.ID, e.Expected, e.Actual)
}
