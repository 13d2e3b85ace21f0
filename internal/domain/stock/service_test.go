// internal/domain/stock/service_test.go
package stock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/your-org/distribution-backend/internal/config"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&StockAccount{}, &StockMovement{}))

	cfg := &config.Config{Ledger: config.LedgerConfig{LockTimeout: time.Second}}
	return NewService(db, cfg), db
}

func TestAdjustCreatesAccountAndCredits(t *testing.T) {
	svc, _ := newTestService(t)

	account, err := svc.Adjust(context.Background(), &AdjustRequest{ItemID: 1, Quantity: 25})
	require.NoError(t, err)
	assert.Equal(t, 25, account.AvailableQuantity)

	qty, err := svc.Peek(1)
	require.NoError(t, err)
	assert.Equal(t, 25, qty)
}

func TestAdjustNegativeDebits(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, &AdjustRequest{ItemID: 1, Quantity: 10})
	require.NoError(t, err)

	account, err := svc.Adjust(ctx, &AdjustRequest{ItemID: 1, Quantity: -4})
	require.NoError(t, err)
	assert.Equal(t, 6, account.AvailableQuantity)

	// Debiting below zero is refused.
	_, err = svc.Adjust(ctx, &AdjustRequest{ItemID: 1, Quantity: -7})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Available)
}

func TestReserveEnforcesFloor(t *testing.T) {
	svc, db := newTestService(t)

	_, err := svc.Adjust(context.Background(), &AdjustRequest{ItemID: 1, Quantity: 5})
	require.NoError(t, err)

	ref := Reference{Type: ReferenceDispatch, ID: 42}
	err = svc.Reserve(db, 1, 6, ref)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, uint(1), stockErr.ItemID)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)

	require.NoError(t, svc.Reserve(db, 1, 5, ref))
	qty, err := svc.Peek(1)
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}

func TestReserveZeroIsNoOp(t *testing.T) {
	svc, db := newTestService(t)

	_, err := svc.Adjust(context.Background(), &AdjustRequest{ItemID: 1, Quantity: 5})
	require.NoError(t, err)

	require.NoError(t, svc.Reserve(db, 1, 0, Reference{Type: ReferenceDispatch}))
	require.NoError(t, svc.Release(db, 1, 0, Reference{Type: ReferenceDispatch}))

	// No-ops leave no audit trail behind.
	movements, err := svc.GetMovements(1, 10)
	require.NoError(t, err)
	assert.Len(t, movements, 1) // only the initial adjustment
}

func TestMovementsRecordBeforeAndAfter(t *testing.T) {
	svc, db := newTestService(t)

	_, err := svc.Adjust(context.Background(), &AdjustRequest{ItemID: 1, Quantity: 10})
	require.NoError(t, err)

	require.NoError(t, svc.Reserve(db, 1, 4, Reference{Type: ReferenceDispatch, ID: 7}))
	require.NoError(t, svc.Release(db, 1, 2, Reference{Type: ReferenceReturn, ID: 8}))

	movements, err := svc.GetMovements(1, 10)
	require.NoError(t, err)
	require.Len(t, movements, 3)

	byRef := make(map[string]StockMovement, len(movements))
	for _, m := range movements {
		byRef[m.ReferenceType] = m
	}

	debit := byRef[ReferenceDispatch]
	assert.Equal(t, DirectionDebit, debit.Direction)
	assert.Equal(t, 4, debit.Quantity)
	assert.Equal(t, 10, debit.PreviousQuantity)
	assert.Equal(t, 6, debit.NewQuantity)
	assert.Equal(t, uint(7), debit.ReferenceID)

	credit := byRef[ReferenceReturn]
	assert.Equal(t, DirectionCredit, credit.Direction)
	assert.Equal(t, 6, credit.PreviousQuantity)
	assert.Equal(t, 8, credit.NewQuantity)
}

func TestEnsureAccountIsIdempotent(t *testing.T) {
	svc, db := newTestService(t)

	first, err := svc.EnsureAccount(db, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, first.AvailableQuantity)

	require.NoError(t, svc.Release(db, 3, 9, Reference{Type: ReferenceAdjustment}))

	second, err := svc.EnsureAccount(db, 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 9, second.AvailableQuantity)

	var count int64
	require.NoError(t, db.Model(&StockAccount{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReserveForUnknownItemFails(t *testing.T) {
	svc, db := newTestService(t)

	err := svc.Reserve(db, 99, 1, Reference{Type: ReferenceDispatch})
	assert.Error(t, err)
}
