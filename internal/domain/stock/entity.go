// internal/domain/stock/entity.go
package stock

import (
	"time"
)

// MovementDirection represents the direction of a stock movement
type MovementDirection string

const (
	DirectionDebit  MovementDirection = "debit"  // dispatch created/increased
	DirectionCredit MovementDirection = "credit" // dispatch reduced/deleted, return recorded
)

// Reference types for stock movements
const (
	ReferenceDispatch   = "dispatch"
	ReferenceReturn     = "return"
	ReferenceAdjustment = "adjustment"
)

// StockAccount holds the available quantity for one catalog item in the
// warehouse. AvailableQuantity never goes negative after a committed
// operation; every mutation runs through a conditional update that enforces
// the floor at the SQL level.
type StockAccount struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ItemID            uint      `gorm:"uniqueIndex;not null" json:"item_id"`
	AvailableQuantity int       `gorm:"not null;default:0" json:"available_quantity"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// StockMovement is the append-only audit record of every debit and credit
// applied to a stock account.
type StockMovement struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	StockAccountID   uint              `gorm:"not null;index" json:"stock_account_id"`
	Direction        MovementDirection `gorm:"not null;size:10" json:"direction"`
	Quantity         int               `gorm:"not null" json:"quantity"`
	PreviousQuantity int               `gorm:"not null" json:"previous_quantity"`
	NewQuantity      int               `gorm:"not null" json:"new_quantity"`
	ReferenceType    string            `gorm:"size:50" json:"reference_type"` // "dispatch", "return", "adjustment"
	ReferenceID      uint              `json:"reference_id"`
	Notes            string            `gorm:"type:text" json:"notes"`
	CreatedAt        time.Time         `json:"created_at"`
}

// TableName overrides
func (StockAccount) TableName() string  { return "stock_accounts" }
func (StockMovement) TableName() string { return "stock_movements" }
