// internal/domain/stock/service.go
package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/distribution-backend/internal/config"
	"gorm.io/gorm"
)

// InsufficientStockError is returned when a debit would take an account below
// zero. Requested carries the net delta the operation needed, not the gross
// quantity of the event that triggered it.
type InsufficientStockError struct {
	ItemID    uint `json:"item_id"`
	Requested int  `json:"requested_delta"`
	Available int  `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: available %d, requested %d",
		e.ItemID, e.Available, e.Requested)
}

// Reference identifies the event a stock movement was applied for.
type Reference struct {
	Type string
	ID   uint
}

// Service handles stock account business logic. Reserve and Release take the
// caller's transaction so event writes and stock adjustments commit or roll
// back together.
type Service struct {
	db     *gorm.DB
	config *config.Config
	guard  *Guard
}

// NewService creates a new stock service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
		guard:  NewGuard(cfg.Ledger.LockTimeout),
	}
}

// Guard exposes the per-item lock guard so the order ledger can hold locks
// across a multi-line transaction.
func (s *Service) Guard() *Guard {
	return s.guard
}

// Reserve debits qty from the item's account. Fails with
// InsufficientStockError when the account holds less than qty; the
// conditional update keeps the account from ever going negative even if a
// writer bypasses the guard.
func (s *Service) Reserve(tx *gorm.DB, itemID uint, qty int, ref Reference) error {
	if qty == 0 {
		return nil
	}
	if qty < 0 {
		return fmt.Errorf("reserve quantity must not be negative, got %d", qty)
	}

	account, err := s.accountFor(tx, itemID)
	if err != nil {
		return err
	}

	if account.AvailableQuantity < qty {
		return &InsufficientStockError{
			ItemID:    itemID,
			Requested: qty,
			Available: account.AvailableQuantity,
		}
	}

	result := tx.Model(&StockAccount{}).
		Where("id = ? AND available_quantity >= ?", account.ID, qty).
		UpdateColumn("available_quantity", gorm.Expr("available_quantity - ?", qty))
	if result.Error != nil {
		return fmt.Errorf("failed to debit stock account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Depleted by a concurrent writer between the read and the update.
		return &InsufficientStockError{
			ItemID:    itemID,
			Requested: qty,
			Available: account.AvailableQuantity,
		}
	}

	return s.recordMovement(tx, account, DirectionDebit, qty, account.AvailableQuantity-qty, ref)
}

// Release credits qty back to the item's account. Always succeeds for a known
// item; used for dispatch decreases/deletions and return credits.
func (s *Service) Release(tx *gorm.DB, itemID uint, qty int, ref Reference) error {
	if qty == 0 {
		return nil
	}
	if qty < 0 {
		return fmt.Errorf("release quantity must not be negative, got %d", qty)
	}

	account, err := s.accountFor(tx, itemID)
	if err != nil {
		return err
	}

	result := tx.Model(&StockAccount{}).
		Where("id = ?", account.ID).
		UpdateColumn("available_quantity", gorm.Expr("available_quantity + ?", qty))
	if result.Error != nil {
		return fmt.Errorf("failed to credit stock account: %w", result.Error)
	}

	return s.recordMovement(tx, account, DirectionCredit, qty, account.AvailableQuantity+qty, ref)
}

// Peek returns the current available quantity for an item.
func (s *Service) Peek(itemID uint) (int, error) {
	account, err := s.accountFor(s.db, itemID)
	if err != nil {
		return 0, err
	}
	return account.AvailableQuantity, nil
}

// AdjustRequest represents an inbound stock adjustment (goods received from
// production, stocktake correction).
type AdjustRequest struct {
	ItemID   uint   `json:"item_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"` // positive credits, negative debits
	Notes    string `json:"notes,omitempty"`
}

// Adjust applies a manual stock adjustment as its own guarded transaction.
func (s *Service) Adjust(ctx context.Context, req *AdjustRequest) (*StockAccount, error) {
	release, err := s.guard.Acquire(ctx, []uint{req.ItemID})
	if err != nil {
		return nil, err
	}
	defer release()

	ref := Reference{Type: ReferenceAdjustment}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.EnsureAccount(tx, req.ItemID); err != nil {
			return err
		}
		if req.Quantity >= 0 {
			return s.Release(tx, req.ItemID, req.Quantity, ref)
		}
		return s.Reserve(tx, req.ItemID, -req.Quantity, ref)
	})
	if err != nil {
		return nil, err
	}

	account, err := s.accountFor(s.db, req.ItemID)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// EnsureAccount creates a zero-quantity account for an item if none exists.
// Called when items enter the catalog so every dispatch has a row to debit.
func (s *Service) EnsureAccount(tx *gorm.DB, itemID uint) (*StockAccount, error) {
	var account StockAccount
	err := tx.Where("item_id = ?", itemID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = StockAccount{ItemID: itemID, AvailableQuantity: 0}
		if err := tx.Create(&account).Error; err != nil {
			return nil, fmt.Errorf("failed to create stock account: %w", err)
		}
		return &account, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check stock account: %w", err)
	}
	return &account, nil
}

// GetMovements retrieves the audit trail for an item's account, newest first.
func (s *Service) GetMovements(itemID uint, limit int) ([]StockMovement, error) {
	account, err := s.accountFor(s.db, itemID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}

	var movements []StockMovement
	if err := s.db.Where("stock_account_id = ?", account.ID).
		Order("created_at DESC").
		Limit(limit).
		Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve stock movements: %w", err)
	}
	return movements, nil
}

func (s *Service) accountFor(tx *gorm.DB, itemID uint) (*StockAccount, error) {
	var account StockAccount
	if err := tx.Where("item_id = ?", itemID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("stock account for item %d not found", itemID)
		}
		return nil, fmt.Errorf("failed to load stock account: %w", err)
	}
	return &account, nil
}

func (s *Service) recordMovement(tx *gorm.DB, account *StockAccount, direction MovementDirection, qty, newQty int, ref Reference) error {
	movement := &StockMovement{
		StockAccountID:   account.ID,
		Direction:        direction,
		Quantity:         qty,
		PreviousQuantity: account.AvailableQuantity,
		NewQuantity:      newQty,
		ReferenceType:    ref.Type,
		ReferenceID:      ref.ID,
	}

	if err := tx.Create(movement).Error; err != nil {
		return fmt.Errorf("failed to record stock movement: %w", err)
	}
	return nil
}
