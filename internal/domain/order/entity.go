// internal/domain/order/entity.go
package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

// Order represents a confirmed sales order
type Order struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	OrderNumber string         `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	PartyID     uint           `gorm:"not null;index" json:"party_id"`
	OrderDate   time.Time      `gorm:"not null" json:"order_date"`
	Status      OrderStatus    `gorm:"not null;default:'pending'" json:"status"`
	Notes       string         `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	LineItems []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"line_items"`
}

// OrderLineItem is one (order, item) pairing. OrderedQuantity is fixed at
// order creation; ItemName, Size and UnitWeight are copied from the catalog
// item at that moment so later catalog edits do not rewrite history.
// DispatchedQuantity and ReturnedQuantity are caches over the event logs,
// recomputed inside every mutating transaction.
type OrderLineItem struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	OrderID            uint            `gorm:"not null;index" json:"order_id"`
	ItemID             uint            `gorm:"not null;index" json:"item_id"`
	ItemName           string          `gorm:"not null;size:255" json:"item_name"`
	Size               string          `gorm:"size:50" json:"size"`
	UnitWeight         decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"unit_weight"`
	OrderedQuantity    int             `gorm:"not null" json:"ordered_quantity"`
	DispatchedQuantity int             `gorm:"not null;default:0" json:"dispatched_quantity"`
	ReturnedQuantity   int             `gorm:"not null;default:0" json:"returned_quantity"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// DispatchEvent records one shipment leaving the warehouse. The event ID is
// the shipment identity; ChallanNo and DispatchDate are descriptive and may
// be edited without changing which shipment the lines belong to.
type DispatchEvent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OrderID      uint      `gorm:"not null;index" json:"order_id"`
	DispatchDate time.Time `gorm:"not null;index" json:"dispatch_date"`
	ChallanNo    string    `gorm:"not null;size:50;index" json:"challan_no"`
	Version      int       `gorm:"not null;default:1" json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relationships
	Lines []DispatchLine `gorm:"foreignKey:DispatchEventID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"lines"`
}

// DispatchLine carries the quantity sent for one order line in one shipment.
type DispatchLine struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	DispatchEventID uint      `gorm:"not null;index" json:"dispatch_event_id"`
	OrderLineItemID uint      `gorm:"not null;index" json:"order_line_item_id"`
	ItemID          uint      `gorm:"not null;index" json:"item_id"`
	QuantitySent    int       `gorm:"not null" json:"quantity_sent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ReturnEvent records goods shipped back from a party. Order-scoped returns
// (OrderID set) update their line's returned quantity and require a challan
// number; ad-hoc returns (OrderID nil) only credit stock.
type ReturnEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	OrderID         *uint          `gorm:"index" json:"order_id,omitempty"`
	OrderLineItemID *uint          `gorm:"index" json:"order_line_item_id,omitempty"`
	ItemID          uint           `gorm:"not null;index" json:"item_id"`
	ReturnDate      time.Time      `gorm:"not null;index" json:"return_date"`
	ChallanNumber   string         `gorm:"size:50;index" json:"challan_number"`
	Quantity        int            `gorm:"not null" json:"quantity"`
	Remark          string         `gorm:"type:text" json:"remark"`
	Version         int            `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides
func (Order) TableName() string         { return "orders" }
func (OrderLineItem) TableName() string { return "order_line_items" }
func (DispatchEvent) TableName() string { return "dispatch_events" }
func (DispatchLine) TableName() string  { return "dispatch_lines" }
func (ReturnEvent) TableName() string   { return "return_events" }

// Business methods

// Balance returns the quantity still owed to the party for this line.
func (li *OrderLineItem) Balance() int {
	return li.OrderedQuantity - li.DispatchedQuantity
}

// MaxReturnable returns how much of this line can still be returned:
// everything dispatched and not yet returned.
func (li *OrderLineItem) MaxReturnable() int {
	return li.DispatchedQuantity - li.ReturnedQuantity
}

// IsFullyDispatched reports whether the line's balance has reached zero.
func (li *OrderLineItem) IsFullyDispatched() bool {
	return li.Balance() <= 0
}

// GenerateOrderNumber generates a unique order number
func (o *Order) GenerateOrderNumber() string {
	// Format: ORD-YYYYMMDD-XXXXX
	return fmt.Sprintf("ORD-%s-%05d", time.Now().Format("20060102"), o.ID)
}

// IsAdhoc reports whether the return was logged without an order context.
func (e *ReturnEvent) IsAdhoc() bool {
	return e.OrderID == nil
}
