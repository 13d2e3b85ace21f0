// internal/domain/party/entity.go
package party

import (
	"time"

	"gorm.io/gorm"
)

// Party represents a customer that places orders and receives dispatches.
type Party struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null;size:255;index" json:"party_name"`
	ContactNo string         `gorm:"size:20" json:"contact_no"`
	Address   string         `gorm:"type:text" json:"address"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides
func (Party) TableName() string { return "parties" }
