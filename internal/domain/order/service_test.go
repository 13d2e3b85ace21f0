// internal/domain/order/service_test.go
package order

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/your-org/distribution-backend/internal/config"
	"github.com/your-org/distribution-backend/internal/domain/catalog"
	"github.com/your-org/distribution-backend/internal/domain/party"
	"github.com/your-org/distribution-backend/internal/domain/stock"
)

func newTestLedger(t *testing.T) (*Service, *stock.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every session on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&catalog.Item{},
		&party.Party{},
		&stock.StockAccount{},
		&stock.StockMovement{},
		&Order{},
		&OrderLineItem{},
		&DispatchEvent{},
		&DispatchLine{},
		&ReturnEvent{},
	))

	cfg := &config.Config{Ledger: config.LedgerConfig{LockTimeout: 2 * time.Second}}
	stockSvc := stock.NewService(db, cfg)
	return NewService(db, cfg, stockSvc), stockSvc, db
}

func seedItem(t *testing.T, db *gorm.DB, name, weight string) *catalog.Item {
	t.Helper()
	item := &catalog.Item{
		Name:       name,
		Size:       "12mm",
		UnitWeight: decimal.RequireFromString(weight),
		Price:      1500,
		IsActive:   true,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func seedParty(t *testing.T, db *gorm.DB) *party.Party {
	t.Helper()
	p := &party.Party{Name: "Sharma Traders", ContactNo: "9800000001"}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedStock(t *testing.T, stockSvc *stock.Service, itemID uint, qty int) {
	t.Helper()
	_, err := stockSvc.Adjust(context.Background(), &stock.AdjustRequest{ItemID: itemID, Quantity: qty})
	require.NoError(t, err)
}

func mustAvailable(t *testing.T, stockSvc *stock.Service, itemID uint) int {
	t.Helper()
	qty, err := stockSvc.Peek(itemID)
	require.NoError(t, err)
	return qty
}

func createTestOrder(t *testing.T, svc *Service, partyID uint, lines ...OrderLineRequest) *Order {
	t.Helper()
	order, err := svc.CreateOrder(&CreateOrderRequest{
		PartyID:   partyID,
		OrderDate: "2026-01-10",
		Lines:     lines,
	})
	require.NoError(t, err)
	return order
}

func TestCreateOrderCopiesItemFields(t *testing.T) {
	svc, _, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 100})

	require.Len(t, order.LineItems, 1)
	line := order.LineItems[0]
	assert.Equal(t, "TMT Bar", line.ItemName)
	assert.Equal(t, "12mm", line.Size)
	assert.True(t, line.UnitWeight.Equal(decimal.RequireFromString("0.888")))
	assert.Equal(t, 100, line.OrderedQuantity)
	assert.Equal(t, 0, line.DispatchedQuantity)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.NotEmpty(t, order.OrderNumber)

	// Ordering an item opens its stock account at zero.
	var account stock.StockAccount
	require.NoError(t, db.Where("item_id = ?", item.ID).First(&account).Error)
	assert.Equal(t, 0, account.AvailableQuantity)
}

func TestCreateOrderRejectsUnknownItem(t *testing.T) {
	svc, _, db := newTestLedger(t)
	p := seedParty(t, db)

	_, err := svc.CreateOrder(&CreateOrderRequest{
		PartyID:   p.ID,
		OrderDate: "2026-01-10",
		Lines:     []OrderLineRequest{{ItemID: 999, Quantity: 10}},
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "item_id", vErr.Field)
}

func TestPartialDispatchesCompleteOrder(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 200)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 100})
	lineID := order.LineItems[0].ID
	ctx := context.Background()

	order, err := svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: lineID, Quantity: 40}},
	})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, 40, order.LineItems[0].DispatchedQuantity)
	assert.Equal(t, 60, order.LineItems[0].Balance())

	order, err = svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-20",
		ChallanNo:    "CH-002",
		Lines:        []DispatchLineRequest{{LineItemID: lineID, Quantity: 60}},
	})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCompleted, order.Status)
	assert.Equal(t, 0, order.LineItems[0].Balance())
	assert.Equal(t, 100, mustAvailable(t, stockSvc, item.ID))
}

func TestDispatchInsufficientStock(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 5)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 100})

	_, err := svc.CreateDispatch(context.Background(), order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: order.LineItems[0].ID, Quantity: 6}},
	})

	var stockErr *stock.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)

	// Nothing committed: stock, aggregates and events are all untouched.
	assert.Equal(t, 5, mustAvailable(t, stockSvc, item.ID))
	reloaded, err := svc.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.LineItems[0].DispatchedQuantity)
	var eventCount int64
	require.NoError(t, db.Model(&DispatchEvent{}).Count(&eventCount).Error)
	assert.Zero(t, eventCount)
}

func TestDispatchIsAllOrNothing(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	bar := seedItem(t, db, "TMT Bar", "0.888")
	rod := seedItem(t, db, "MS Rod", "1.250")
	p := seedParty(t, db)
	seedStock(t, stockSvc, bar.ID, 50)
	seedStock(t, stockSvc, rod.ID, 2)

	order := createTestOrder(t, svc, p.ID,
		OrderLineRequest{ItemID: bar.ID, Quantity: 50},
		OrderLineRequest{ItemID: rod.ID, Quantity: 50},
	)

	_, err := svc.CreateDispatch(context.Background(), order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines: []DispatchLineRequest{
			{LineItemID: order.LineItems[0].ID, Quantity: 10},
			{LineItemID: order.LineItems[1].ID, Quantity: 10},
		},
	})

	var stockErr *stock.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, rod.ID, stockErr.ItemID)

	// The first line's debit rolled back with the failed one.
	assert.Equal(t, 50, mustAvailable(t, stockSvc, bar.ID))
	assert.Equal(t, 2, mustAvailable(t, stockSvc, rod.ID))
}

func TestDispatchRejectsForeignLine(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 100)

	first := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 10})
	second := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 10})

	_, err := svc.CreateDispatch(context.Background(), second.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: first.LineItems[0].ID, Quantity: 5}},
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "line_item_id", vErr.Field)
}

func TestEditDispatchAppliesNetChange(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 10)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 20})
	lineID := order.LineItems[0].ID
	ctx := context.Background()

	order, err := svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: lineID, Quantity: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, mustAvailable(t, stockSvc, item.ID))

	var event DispatchEvent
	require.NoError(t, db.First(&event).Error)

	// Reducing 10 to 6 credits exactly the 4-unit difference.
	order, err = svc.EditDispatch(ctx, event.ID, &EditDispatchRequest{
		Lines: []DispatchLineRequest{{LineItemID: lineID, Quantity: 6}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, mustAvailable(t, stockSvc, item.ID))
	assert.Equal(t, 6, order.LineItems[0].DispatchedQuantity)
}

func TestEditDispatchRetryIsNoOp(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 10)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 20})
	lineID := order.LineItems[0].ID
	ctx := context.Background()

	_, err := svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: lineID, Quantity: 10}},
	})
	require.NoError(t, err)

	var event DispatchEvent
	require.NoError(t, db.First(&event).Error)

	edit := &EditDispatchRequest{Lines: []DispatchLineRequest{{LineItemID: lineID, Quantity: 6}}}
	_, err = svc.EditDispatch(ctx, event.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, 4, mustAvailable(t, stockSvc, item.ID))

	// Replaying the same replacement computes zero deltas.
	order, err = svc.EditDispatch(ctx, event.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, 4, mustAvailable(t, stockSvc, item.ID))
	assert.Equal(t, 6, order.LineItems[0].DispatchedQuantity)
}

func TestEditDispatchVersionConflict(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 10)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 20})
	lineID := order.LineItems[0].ID
	ctx := context.Background()

	_, err := svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: lineID, Quantity: 5}},
	})
	require.NoError(t, err)

	var event DispatchEvent
	require.NoError(t, db.First(&event).Error)

	_, err = svc.EditDispatch(ctx, event.ID, &EditDispatchRequest{
		Lines: []DispatchLineRequest{{LineItemID: lineID, Quantity: 6}},
	})
	require.NoError(t, err)

	stale := 1
	_, err = svc.EditDispatch(ctx, event.ID, &EditDispatchRequest{
		Lines:           []DispatchLineRequest{{LineItemID: lineID, Quantity: 8}},
		ExpectedVersion: &stale,
	})

	var conflict *VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.Expected)
	assert.Equal(t, 2, conflict.Actual)
	assert.Equal(t, 4, mustAvailable(t, stockSvc, item.ID))
}

func TestDeleteDispatchReopensOrder(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 50)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 30})
	lineID := order.LineItems[0].ID
	ctx := context.Background()

	order, err := svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: lineID, Quantity: 30}},
	})
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, order.Status)
	assert.Equal(t, 20, mustAvailable(t, stockSvc, item.ID))

	var event DispatchEvent
	require.NoError(t, db.First(&event).Error)

	order, err = svc.DeleteDispatch(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, 0, order.LineItems[0].DispatchedQuantity)
	assert.Equal(t, 50, mustAvailable(t, stockSvc, item.ID))
}

func TestReturnCreditsStockUpToCeiling(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 10)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 10})
	lineID := order.LineItems[0].ID
	ctx := context.Background()

	order, err := svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: lineID, Quantity: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, order.Status)

	_, err = svc.CreateReturn(ctx, order.ID, &CreateReturnRequest{
		LineItemID:    lineID,
		Quantity:      15,
		ReturnDate:    "2026-02-01",
		ChallanNumber: "RCH-001",
	})
	var ceiling *ReturnExceedsDispatchedError
	require.ErrorAs(t, err, &ceiling)
	assert.Equal(t, 15, ceiling.Requested)
	assert.Equal(t, 10, ceiling.MaxReturnable)

	order, err = svc.CreateReturn(ctx, order.ID, &CreateReturnRequest{
		LineItemID:    lineID,
		Quantity:      4,
		ReturnDate:    "2026-02-01",
		ChallanNumber: "RCH-001",
		Remark:        "bent bundles",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, order.LineItems[0].ReturnedQuantity)
	assert.Equal(t, 4, mustAvailable(t, stockSvc, item.ID))
	// Returns never re-open a completed order.
	assert.Equal(t, OrderStatusCompleted, order.Status)

	// Second return bounded by what is still out.
	_, err = svc.CreateReturn(ctx, order.ID, &CreateReturnRequest{
		LineItemID:    lineID,
		Quantity:      7,
		ReturnDate:    "2026-02-05",
		ChallanNumber: "RCH-002",
	})
	require.ErrorAs(t, err, &ceiling)
	assert.Equal(t, 6, ceiling.MaxReturnable)
}

func TestReturnRequiresChallan(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 10)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 10})

	_, err := svc.CreateReturn(context.Background(), order.ID, &CreateReturnRequest{
		LineItemID: order.LineItems[0].ID,
		Quantity:   1,
		ReturnDate: "2026-02-01",
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "challan_number", vErr.Field)
}

func TestAdhocReturnOnlyCreditsStock(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	ctx := context.Background()

	// No prior stock account and no challan: both are fine for ad-hoc.
	event, err := svc.CreateAdhocReturn(ctx, &AdhocReturnRequest{
		ItemID:     item.ID,
		Quantity:   12,
		ReturnDate: "2026-02-01",
		Remark:     "site clearance",
	})
	require.NoError(t, err)
	assert.True(t, event.IsAdhoc())
	assert.Nil(t, event.OrderID)
	assert.Equal(t, 12, mustAvailable(t, stockSvc, item.ID))
}

func TestEditReturnNetChange(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 10)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 10})
	lineID := order.LineItems[0].ID
	ctx := context.Background()

	_, err := svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: lineID, Quantity: 10}},
	})
	require.NoError(t, err)

	order, err = svc.CreateReturn(ctx, order.ID, &CreateReturnRequest{
		LineItemID:    lineID,
		Quantity:      5,
		ReturnDate:    "2026-02-01",
		ChallanNumber: "RCH-001",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, mustAvailable(t, stockSvc, item.ID))

	var event ReturnEvent
	require.NoError(t, db.First(&event).Error)

	// 5 -> 8 credits the 3-unit difference.
	up := 8
	order, err = svc.EditReturn(ctx, event.ID, &EditReturnRequest{Quantity: &up})
	require.NoError(t, err)
	assert.Equal(t, 8, mustAvailable(t, stockSvc, item.ID))
	assert.Equal(t, 8, order.LineItems[0].ReturnedQuantity)

	// 8 -> 11 would put returned above dispatched.
	tooMany := 11
	_, err = svc.EditReturn(ctx, event.ID, &EditReturnRequest{Quantity: &tooMany})
	var ceiling *ReturnExceedsDispatchedError
	require.ErrorAs(t, err, &ceiling)
	assert.Equal(t, 10, ceiling.MaxReturnable)

	// 8 -> 6 debits 2 back out of the warehouse.
	down := 6
	order, err = svc.EditReturn(ctx, event.ID, &EditReturnRequest{Quantity: &down})
	require.NoError(t, err)
	assert.Equal(t, 6, mustAvailable(t, stockSvc, item.ID))
	assert.Equal(t, 6, order.LineItems[0].ReturnedQuantity)
}

func TestDeleteReturnFailsWhenStockReDispatched(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 10)

	first := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 10})
	ctx := context.Background()

	_, err := svc.CreateDispatch(ctx, first.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: first.LineItems[0].ID, Quantity: 10}},
	})
	require.NoError(t, err)

	_, err = svc.CreateReturn(ctx, first.ID, &CreateReturnRequest{
		LineItemID:    first.LineItems[0].ID,
		Quantity:      5,
		ReturnDate:    "2026-02-01",
		ChallanNumber: "RCH-001",
	})
	require.NoError(t, err)
	require.Equal(t, 5, mustAvailable(t, stockSvc, item.ID))

	// The returned units ship out again on another order.
	second := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 5})
	_, err = svc.CreateDispatch(ctx, second.ID, &CreateDispatchRequest{
		DispatchDate: "2026-02-10",
		ChallanNo:    "CH-002",
		Lines:        []DispatchLineRequest{{LineItemID: second.LineItems[0].ID, Quantity: 5}},
	})
	require.NoError(t, err)
	require.Equal(t, 0, mustAvailable(t, stockSvc, item.ID))

	var event ReturnEvent
	require.NoError(t, db.Where("quantity = ?", 5).Order("id").First(&event).Error)

	_, err = svc.DeleteReturn(ctx, event.ID)
	var stockErr *stock.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	// The conflict left the return in place.
	reloaded, err := svc.GetOrder(first.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.LineItems[0].ReturnedQuantity)
}

func TestDeleteReturnRestoresState(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 10)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 10})
	ctx := context.Background()

	_, err := svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: order.LineItems[0].ID, Quantity: 10}},
	})
	require.NoError(t, err)

	_, err = svc.CreateReturn(ctx, order.ID, &CreateReturnRequest{
		LineItemID:    order.LineItems[0].ID,
		Quantity:      3,
		ReturnDate:    "2026-02-01",
		ChallanNumber: "RCH-001",
	})
	require.NoError(t, err)

	var event ReturnEvent
	require.NoError(t, db.First(&event).Error)

	order, err = svc.DeleteReturn(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, order.LineItems[0].ReturnedQuantity)
	assert.Equal(t, 0, mustAvailable(t, stockSvc, item.ID))
}

func TestDeleteOrderReleasesOutstandingGoods(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 20)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 20})
	lineID := order.LineItems[0].ID
	ctx := context.Background()

	_, err := svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: lineID, Quantity: 10}},
	})
	require.NoError(t, err)
	_, err = svc.CreateReturn(ctx, order.ID, &CreateReturnRequest{
		LineItemID:    lineID,
		Quantity:      3,
		ReturnDate:    "2026-02-01",
		ChallanNumber: "RCH-001",
	})
	require.NoError(t, err)
	require.Equal(t, 13, mustAvailable(t, stockSvc, item.ID))

	require.NoError(t, svc.DeleteOrder(ctx, order.ID))

	// 10 dispatched minus 3 returned comes back to the warehouse.
	assert.Equal(t, 20, mustAvailable(t, stockSvc, item.ID))
	_, err = svc.GetOrder(order.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var lineCount int64
	require.NoError(t, db.Model(&DispatchLine{}).Count(&lineCount).Error)
	assert.Zero(t, lineCount)
}

func TestGetOrdersFiltersAndPaginates(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 100)

	for i := 0; i < 3; i++ {
		createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 10})
	}

	resp, err := svc.GetOrders(&OrderListRequest{Page: 1, Limit: 2, Status: OrderStatusPending})
	require.NoError(t, err)
	assert.Len(t, resp.Orders, 2)
	assert.Equal(t, int64(3), resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.TotalPages)
	assert.True(t, resp.Pagination.HasNext)
	assert.False(t, resp.Pagination.HasPrev)

	resp, err = svc.GetOrders(&OrderListRequest{Page: 1, Limit: 10, Status: OrderStatusCompleted})
	require.NoError(t, err)
	assert.Empty(t, resp.Orders)
}

func TestConcurrentReturnsRespectCeiling(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)
	seedStock(t, stockSvc, item.ID, 10)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 10})
	lineID := order.LineItems[0].ID
	ctx := context.Background()

	_, err := svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
		DispatchDate: "2026-01-12",
		ChallanNo:    "CH-001",
		Lines:        []DispatchLineRequest{{LineItemID: lineID, Quantity: 10}},
	})
	require.NoError(t, err)

	// Two full-quantity returns race for the same line. Whichever commits
	// second must see the first one's state and hit the ceiling; letting
	// both through would credit 20 against 10 dispatched.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateReturn(ctx, order.ID, &CreateReturnRequest{
				LineItemID:    lineID,
				Quantity:      10,
				ReturnDate:    "2026-02-01",
				ChallanNumber: fmt.Sprintf("RCH-%03d", i+1),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var ceiling *ReturnExceedsDispatchedError
		require.ErrorAs(t, err, &ceiling)
		assert.Equal(t, 10, ceiling.Requested)
	}
	require.Equal(t, 1, succeeded)

	reloaded, err := svc.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.LineItems[0].ReturnedQuantity)
	assert.Equal(t, 10, mustAvailable(t, stockSvc, item.ID))
}

func TestRandomizedLedgerInvariants(t *testing.T) {
	svc, stockSvc, db := newTestLedger(t)
	item := seedItem(t, db, "TMT Bar", "0.888")
	p := seedParty(t, db)

	const opening = 200
	seedStock(t, stockSvc, item.ID, opening)

	order := createTestOrder(t, svc, p.ID, OrderLineRequest{ItemID: item.ID, Quantity: 100})
	lineID := order.LineItems[0].ID
	ctx := context.Background()

	// A fixed seed keeps the sequence reproducible.
	rng := rand.New(rand.NewSource(42))
	adjustNet := 0

	for i := 0; i < 200; i++ {
		switch rng.Intn(6) {
		case 0:
			_, err := svc.CreateDispatch(ctx, order.ID, &CreateDispatchRequest{
				DispatchDate: "2026-03-01",
				ChallanNo:    fmt.Sprintf("CH-%03d", i),
				Lines:        []DispatchLineRequest{{LineItemID: lineID, Quantity: rng.Intn(31)}},
			})
			requireLedgerError(t, err)
		case 1:
			if id, ok := randomEventID(t, db, rng, &DispatchEvent{}); ok {
				_, err := svc.EditDispatch(ctx, id, &EditDispatchRequest{
					Lines: []DispatchLineRequest{{LineItemID: lineID, Quantity: rng.Intn(31)}},
				})
				requireLedgerError(t, err)
			}
		case 2:
			if id, ok := randomEventID(t, db, rng, &DispatchEvent{}); ok {
				_, err := svc.DeleteDispatch(ctx, id)
				requireLedgerError(t, err)
			}
		case 3:
			_, err := svc.CreateReturn(ctx, order.ID, &CreateReturnRequest{
				LineItemID:    lineID,
				Quantity:      1 + rng.Intn(20),
				ReturnDate:    "2026-03-05",
				ChallanNumber: fmt.Sprintf("RCH-%03d", i),
			})
			requireLedgerError(t, err)
		case 4:
			if id, ok := randomEventID(t, db, rng, &ReturnEvent{}); ok {
				if rng.Intn(2) == 0 {
					qty := 1 + rng.Intn(20)
					_, err := svc.EditReturn(ctx, id, &EditReturnRequest{Quantity: &qty})
					requireLedgerError(t, err)
				} else {
					_, err := svc.DeleteReturn(ctx, id)
					requireLedgerError(t, err)
				}
			}
		case 5:
			delta := rng.Intn(21) - 10
			if delta == 0 {
				delta = 5
			}
			if _, err := stockSvc.Adjust(ctx, &stock.AdjustRequest{ItemID: item.ID, Quantity: delta}); err == nil {
				adjustNet += delta
			} else {
				requireLedgerError(t, err)
			}
		}

		assertLedgerInvariants(t, db, stockSvc, order.ID, lineID, item.ID, opening+adjustNet)
	}
}

// requireLedgerError accepts nil or one of the typed rejections a mutation
// may legitimately return; anything else fails the test.
func requireLedgerError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		return
	}
	var validationErr *ValidationError
	var ceilingErr *ReturnExceedsDispatchedError
	var stockErr *stock.InsufficientStockError
	if errors.As(err, &validationErr) || errors.As(err, &ceilingErr) || errors.As(err, &stockErr) {
		return
	}
	t.Fatalf("unexpected error: %v", err)
}

func randomEventID(t *testing.T, db *gorm.DB, rng *rand.Rand, model interface{}) (uint, bool) {
	t.Helper()
	var ids []uint
	require.NoError(t, db.Model(model).Pluck("id", &ids).Error)
	if len(ids) == 0 {
		return 0, false
	}
	return ids[rng.Intn(len(ids))], true
}

// assertLedgerInvariants checks the books after a step: the stock floor, the
// cached aggregates against the event logs, conservation of goods and the
// derived order status.
func assertLedgerInvariants(t *testing.T, db *gorm.DB, stockSvc *stock.Service, orderID, lineID, itemID uint, baseline int) {
	t.Helper()

	available := mustAvailable(t, stockSvc, itemID)
	require.GreaterOrEqual(t, available, 0)

	var line OrderLineItem
	require.NoError(t, db.First(&line, lineID).Error)

	var dispatched int64
	require.NoError(t, db.Model(&DispatchLine{}).
		Where("order_line_item_id = ?", lineID).
		Select("COALESCE(SUM(quantity_sent), 0)").
		Scan(&dispatched).Error)

	var returned int64
	require.NoError(t, db.Model(&ReturnEvent{}).
		Where("order_line_item_id = ?", lineID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&returned).Error)

	require.Equal(t, int(dispatched), line.DispatchedQuantity)
	require.Equal(t, int(returned), line.ReturnedQuantity)

	// Goods are conserved: warehouse plus out-with-party equals opening
	// stock plus net adjustments.
	require.Equal(t, baseline, available+line.DispatchedQuantity-line.ReturnedQuantity)

	var reloaded Order
	require.NoError(t, db.First(&reloaded, orderID).Error)
	if line.Balance() == 0 {
		require.Equal(t, OrderStatusCompleted, reloaded.Status)
	} else {
		require.Equal(t, OrderStatusPending, reloaded.Status)
	}
}
