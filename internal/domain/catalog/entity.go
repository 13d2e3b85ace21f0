// internal/domain/catalog/entity.go
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Item represents a catalog item manufactured and sold by the distributor.
// The ledger treats this as read-mostly master data: line items copy the
// fields they need at order creation time so later catalog edits do not
// rewrite history.
type Item struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Name       string          `gorm:"not null;size:255;index" json:"item_name"`
	Size       string          `gorm:"size:50" json:"size"`
	UnitWeight decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"weight"` // weight per unit in kg
	Price      int64           `gorm:"default:0" json:"price"`                    // In cents
	IsActive   bool            `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName overrides
func (Item) TableName() string { return "items" }
