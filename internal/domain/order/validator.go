// internal/domain/order/validator.go
package order

import (
	"sort"
	"time"
)

// DateLayout is the wire format for ledger dates.
const DateLayout = "2006-01-02"

// The functions in this file are the reconciliation validator: pure checks
// run before any store mutation, so a rejected operation never needs
// compensating rollback logic beyond aborting the transaction.

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &ValidationError{Field: field, Reason: "is required"}
	}
	date, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &ValidationError{Field: field, Reason: "must be a date in YYYY-MM-DD format"}
	}
	return date, nil
}

// validateDispatchLines rejects empty payloads, negative quantities and
// duplicate line references.
func validateDispatchLines(lines []DispatchLineRequest) error {
	if len(lines) == 0 {
		return &ValidationError{Field: "lines", Reason: "at least one line is required"}
	}

	seen := make(map[uint]struct{}, len(lines))
	for _, line := range lines {
		if line.LineItemID == 0 {
			return &ValidationError{Field: "line_item_id", Reason: "is required"}
		}
		if line.Quantity < 0 {
			return &ValidationError{Field: "quantity", Reason: "must not be negative"}
		}
		if _, ok := seen[line.LineItemID]; ok {
			return &ValidationError{Field: "line_item_id", Reason: "appears more than once"}
		}
		seen[line.LineItemID] = struct{}{}
	}
	return nil
}

// validateCreateDispatch checks a dispatch creation payload and parses its
// date.
func validateCreateDispatch(req *CreateDispatchRequest) (time.Time, error) {
	if req.ChallanNo == "" {
		return time.Time{}, &ValidationError{Field: "challan_no", Reason: "is required"}
	}
	if err := validateDispatchLines(req.Lines); err != nil {
		return time.Time{}, err
	}
	return parseDate("dispatch_date", req.DispatchDate)
}

// validateEditDispatch checks an edit payload. Date and challan are optional;
// the line list is a full replacement and follows the same rules as create.
func validateEditDispatch(req *EditDispatchRequest) (*time.Time, error) {
	if req.ChallanNo != nil && *req.ChallanNo == "" {
		return nil, &ValidationError{Field: "challan_no", Reason: "must not be empty"}
	}
	if err := validateDispatchLines(req.Lines); err != nil {
		return nil, err
	}
	if req.DispatchDate == nil {
		return nil, nil
	}
	date, err := parseDate("dispatch_date", *req.DispatchDate)
	if err != nil {
		return nil, err
	}
	return &date, nil
}

// validateReturnQuantity enforces the positive-quantity rule shared by all
// return variants.
func validateReturnQuantity(qty int) error {
	if qty <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	return nil
}

// checkReturnCeiling enforces the returnable ceiling for an order-scoped
// return: a line can never have more returned than was dispatched.
func checkReturnCeiling(line *OrderLineItem, requested int) error {
	max := line.MaxReturnable()
	if requested > max {
		return &ReturnExceedsDispatchedError{
			ItemID:        line.ItemID,
			Requested:     requested,
			MaxReturnable: max,
		}
	}
	return nil
}

// LineDelta is the net change an edit applies to one line. Only Delta ever
// reaches a stock account, so retrying a committed edit computes zero deltas
// and is a no-op.
type LineDelta struct {
	LineItemID uint
	Old        int
	New        int
	Delta      int
}

// planLineDeltas diffs the stored per-line quantities against a full
// replacement payload. Lines missing from the replacement are treated as
// reduced to zero. The result is ordered by line-item ID so stock operations
// are applied deterministically.
func planLineDeltas(old map[uint]int, replacement []DispatchLineRequest) []LineDelta {
	deltas := make([]LineDelta, 0, len(replacement)+len(old))

	replaced := make(map[uint]struct{}, len(replacement))
	for _, line := range replacement {
		replaced[line.LineItemID] = struct{}{}
		prev := old[line.LineItemID]
		deltas = append(deltas, LineDelta{
			LineItemID: line.LineItemID,
			Old:        prev,
			New:        line.Quantity,
			Delta:      line.Quantity - prev,
		})
	}

	for lineItemID, prev := range old {
		if _, ok := replaced[lineItemID]; ok {
			continue
		}
		deltas = append(deltas, LineDelta{
			LineItemID: lineItemID,
			Old:        prev,
			New:        0,
			Delta:      -prev,
		})
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].LineItemID < deltas[j].LineItemID })
	return deltas
}
