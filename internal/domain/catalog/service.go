// internal/domain/catalog/service.go
package catalog

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/your-org/distribution-backend/internal/config"
	"gorm.io/gorm"
)

// ErrItemReferenced is returned when an item cannot be deleted because
// dispatch or return records still reference it.
var ErrItemReferenced = errors.New("item is referenced by dispatch or return records")

// Service handles catalog item business logic
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new catalog service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// CreateItemRequest represents item creation data
type CreateItemRequest struct {
	Name       string `json:"item_name" binding:"required"`
	Size       string `json:"size"`
	UnitWeight string `json:"weight" binding:"required"` // decimal string, kg per unit
	Price      int64  `json:"price"`
}

// CreateItem creates a new catalog item
func (s *Service) CreateItem(req *CreateItemRequest) (*Item, error) {
	weight, err := parseWeight(req.UnitWeight)
	if err != nil {
		return nil, err
	}

	item := &Item{
		Name:       req.Name,
		Size:       req.Size,
		UnitWeight: weight,
		Price:      req.Price,
		IsActive:   true,
	}

	if err := s.db.Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	return item, nil
}

// GetItems retrieves all active items
func (s *Service) GetItems() ([]Item, error) {
	var items []Item
	if err := s.db.Where("is_active = ?", true).Order("name").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve items: %w", err)
	}
	return items, nil
}

// GetItem retrieves a single item by ID
func (s *Service) GetItem(id uint) (*Item, error) {
	var item Item
	if err := s.db.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item %d not found", id)
		}
		return nil, fmt.Errorf("failed to retrieve item: %w", err)
	}
	return &item, nil
}

// DeleteItem soft-deletes an item. The delete is rejected while any dispatch
// line or return event still references the item, so the ledger's history
// always resolves to a real item row.
func (s *Service) DeleteItem(id uint) error {
	var item Item
	if err := s.db.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("item %d not found", id)
		}
		return fmt.Errorf("failed to retrieve item: %w", err)
	}

	// Raw table lookups keep this package free of a dependency on the order
	// domain, which already depends on catalog.
	var dispatchRefs int64
	if err := s.db.Table("dispatch_lines").Where("item_id = ?", id).Count(&dispatchRefs).Error; err != nil {
		return fmt.Errorf("failed to check dispatch references: %w", err)
	}

	var returnRefs int64
	if err := s.db.Table("return_events").Where("item_id = ? AND deleted_at IS NULL", id).Count(&returnRefs).Error; err != nil {
		return fmt.Errorf("failed to check return references: %w", err)
	}

	if dispatchRefs > 0 || returnRefs > 0 {
		return fmt.Errorf("cannot delete item %d: %w", id, ErrItemReferenced)
	}

	if err := s.db.Delete(&item).Error; err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	return nil
}

func parseWeight(value string) (decimal.Decimal, error) {
	weight, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid weight %q: %w", value, err)
	}
	if weight.IsNegative() {
		return decimal.Zero, fmt.Errorf("weight must not be negative")
	}
	return weight, nil
}
