// internal/domain/order/service.go
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/your-org/distribution-backend/internal/config"
	"github.com/your-org/distribution-backend/internal/domain/catalog"
	"github.com/your-org/distribution-backend/internal/domain/stock"
	"gorm.io/gorm"
)

// Service is the order ledger: the aggregate root for dispatch and return
// mutations. Every mutation validates first, then takes the per-item stock
// locks, then runs the event write and all stock adjustments in one
// transaction.
type Service struct {
	db     *gorm.DB
	config *config.Config
	stock  *stock.Service
}

// NewService creates a new order ledger service
func NewService(db *gorm.DB, cfg *config.Config, stockService *stock.Service) *Service {
	return &Service{
		db:     db,
		config: cfg,
		stock:  stockService,
	}
}

// CreateOrderRequest represents order creation data
type CreateOrderRequest struct {
	PartyID   uint               `json:"party_id" binding:"required"`
	OrderDate string             `json:"order_date" binding:"required"`
	Notes     string             `json:"notes,omitempty"`
	Lines     []OrderLineRequest `json:"lines" binding:"required,dive"`
}

// OrderLineRequest represents one requested line on a new order
type OrderLineRequest struct {
	ItemID   uint `json:"item_id" binding:"required"`
	Quantity int  `json:"quantity" binding:"required"`
}

// CreateDispatchRequest represents a dispatch submission
type CreateDispatchRequest struct {
	DispatchDate string                `json:"dispatch_date" binding:"required"`
	ChallanNo    string                `json:"challan_no" binding:"required"`
	Lines        []DispatchLineRequest `json:"lines" binding:"required"`
}

// DispatchLineRequest carries the quantity sent for one order line
type DispatchLineRequest struct {
	LineItemID uint `json:"line_item_id" binding:"required"`
	Quantity   int  `json:"quantity"`
}

// EditDispatchRequest replaces a dispatch's per-line quantities and
// optionally its date and challan number.
type EditDispatchRequest struct {
	DispatchDate    *string               `json:"dispatch_date,omitempty"`
	ChallanNo       *string               `json:"challan_no,omitempty"`
	Lines           []DispatchLineRequest `json:"lines" binding:"required"`
	ExpectedVersion *int                  `json:"expected_version,omitempty"`
}

// CreateReturnRequest represents an order-scoped return
type CreateReturnRequest struct {
	LineItemID    uint   `json:"line_item_id" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required"`
	ReturnDate    string `json:"return_date" binding:"required"`
	ChallanNumber string `json:"challan_number" binding:"required"`
	Remark        string `json:"remark,omitempty"`
}

// AdhocReturnRequest represents a return logged without an order context
type AdhocReturnRequest struct {
	ItemID        uint   `json:"item_id" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required"`
	ReturnDate    string `json:"return_date" binding:"required"`
	ChallanNumber string `json:"challan_number,omitempty"`
	Remark        string `json:"remark,omitempty"`
}

// EditReturnRequest updates a return event; only provided fields change
type EditReturnRequest struct {
	Quantity        *int    `json:"quantity,omitempty"`
	ReturnDate      *string `json:"return_date,omitempty"`
	ChallanNumber   *string `json:"challan_number,omitempty"`
	Remark          *string `json:"remark,omitempty"`
	ExpectedVersion *int    `json:"expected_version,omitempty"`
}

// OrderListRequest represents order list query parameters
type OrderListRequest struct {
	Page     int         `form:"page,default=1"`
	Limit    int         `form:"limit,default=20"`
	Status   OrderStatus `form:"status"`
	PartyID  uint        `form:"party_id"`
	DateFrom string      `form:"date_from"`
	DateTo   string      `form:"date_to"`
}

// OrderListResponse represents orders with pagination
type OrderListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// ORDER LIFECYCLE

// CreateOrder creates an order with its line items, copying item name, size
// and unit weight from the catalog for historical accuracy.
func (s *Service) CreateOrder(req *CreateOrderRequest) (*Order, error) {
	if len(req.Lines) == 0 {
		return nil, &ValidationError{Field: "lines", Reason: "at least one line is required"}
	}

	orderDate, err := parseDate("order_date", req.OrderDate)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]struct{}, len(req.Lines))
	items := make(map[uint]*catalog.Item, len(req.Lines))
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
		}
		if _, ok := seen[line.ItemID]; ok {
			return nil, &ValidationError{Field: "item_id", Reason: "appears more than once"}
		}
		seen[line.ItemID] = struct{}{}

		var item catalog.Item
		if err := s.db.Where("is_active = ?", true).First(&item, line.ItemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &ValidationError{Field: "item_id", Reason: fmt.Sprintf("item %d not found", line.ItemID)}
			}
			return nil, fmt.Errorf("failed to load item %d: %w", line.ItemID, err)
		}
		items[line.ItemID] = &item
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	order := Order{
		PartyID:   req.PartyID,
		OrderDate: orderDate,
		Status:    OrderStatusPending,
		Notes:     req.Notes,
	}
	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	order.OrderNumber = order.GenerateOrderNumber()
	if err := tx.Model(&order).Update("order_number", order.OrderNumber).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update order number: %w", err)
	}

	for _, line := range req.Lines {
		item := items[line.ItemID]
		lineItem := OrderLineItem{
			OrderID:         order.ID,
			ItemID:          item.ID,
			ItemName:        item.Name,
			Size:            item.Size,
			UnitWeight:      item.UnitWeight,
			OrderedQuantity: line.Quantity,
		}
		if err := tx.Create(&lineItem).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create order line item: %w", err)
		}

		// Every ordered item gets a stock account so dispatches have a row
		// to debit.
		if _, err := s.stock.EnsureAccount(tx, item.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit order transaction: %w", err)
	}

	return s.GetOrder(order.ID)
}

// GetOrder retrieves a single order with its line items
func (s *Service) GetOrder(id uint) (*Order, error) {
	var order Order
	result := s.db.
		Preload("LineItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("id")
		}).
		First(&order, id)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", result.Error)
	}

	return &order, nil
}

// GetOrders retrieves orders with filtering and pagination
func (s *Service) GetOrders(req *OrderListRequest) (*OrderListResponse, error) {
	var orders []Order
	var total int64

	query := s.db.Model(&Order{}).Preload("LineItems")

	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.PartyID > 0 {
		query = query.Where("party_id = ?", req.PartyID)
	}
	if req.DateFrom != "" {
		query = query.Where("order_date >= ?", req.DateFrom)
	}
	if req.DateTo != "" {
		query = query.Where("order_date <= ?", req.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 20
	}

	offset := (req.Page - 1) * req.Limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(req.Limit).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &OrderListResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

// DeleteOrder deletes an order and cascade-deletes its dispatch and return
// events. Goods still out with the party (dispatched minus returned) are
// credited back to stock in the same transaction.
func (s *Service) DeleteOrder(ctx context.Context, id uint) error {
	order, err := s.GetOrder(id)
	if err != nil {
		return err
	}

	itemIDs := make([]uint, 0, len(order.LineItems))
	for _, line := range order.LineItems {
		itemIDs = append(itemIDs, line.ItemID)
	}

	release, err := s.stock.Guard().Acquire(ctx, itemIDs)
	if err != nil {
		return err
	}
	defer release()

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Outstanding goods are computed from rows re-read under the locks so a
	// concurrent dispatch or return cannot skew the released amount.
	var lines []OrderLineItem
	if err := tx.Where("order_id = ?", id).Find(&lines).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to reload order lines: %w", err)
	}
	for _, line := range lines {
		net := line.DispatchedQuantity - line.ReturnedQuantity
		if net > 0 {
			ref := stock.Reference{Type: stock.ReferenceAdjustment, ID: order.ID}
			if err := s.stock.Release(tx, line.ItemID, net, ref); err != nil {
				tx.Rollback()
				return err
			}
		}
	}

	var eventIDs []uint
	if err := tx.Model(&DispatchEvent{}).Where("order_id = ?", id).Pluck("id", &eventIDs).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to list dispatch events: %w", err)
	}
	if len(eventIDs) > 0 {
		if err := tx.Where("dispatch_event_id IN ?", eventIDs).Delete(&DispatchLine{}).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to delete dispatch lines: %w", err)
		}
	}
	if err := tx.Where("order_id = ?", id).Delete(&DispatchEvent{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete dispatch events: %w", err)
	}
	if err := tx.Where("order_id = ?", id).Delete(&ReturnEvent{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete return events: %w", err)
	}
	if err := tx.Where("order_id = ?", id).Delete(&OrderLineItem{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete order line items: %w", err)
	}
	if err := tx.Delete(&Order{}, id).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete order: %w", err)
	}

	return tx.Commit().Error
}

// DISPATCH OPERATIONS

// CreateDispatch records a shipment against an order. Every line reservation
// must succeed or the whole operation is rejected.
func (s *Service) CreateDispatch(ctx context.Context, orderID uint, req *CreateDispatchRequest) (*Order, error) {
	dispatchDate, err := validateCreateDispatch(req)
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}

	lineByID := mapLines(order.LineItems)
	itemIDs := make([]uint, 0, len(req.Lines))
	for _, line := range req.Lines {
		target, ok := lineByID[line.LineItemID]
		if !ok {
			return nil, &ValidationError{Field: "line_item_id", Reason: fmt.Sprintf("line %d does not belong to order %d", line.LineItemID, orderID)}
		}
		itemIDs = append(itemIDs, target.ItemID)
	}

	release, err := s.stock.Guard().Acquire(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	defer release()

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	event := DispatchEvent{
		OrderID:      orderID,
		DispatchDate: dispatchDate,
		ChallanNo:    req.ChallanNo,
		Version:      1,
	}
	if err := tx.Create(&event).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create dispatch event: %w", err)
	}

	ref := stock.Reference{Type: stock.ReferenceDispatch, ID: event.ID}
	for _, line := range req.Lines {
		target := lineByID[line.LineItemID]

		dispatchLine := DispatchLine{
			DispatchEventID: event.ID,
			OrderLineItemID: target.ID,
			ItemID:          target.ItemID,
			QuantitySent:    line.Quantity,
		}
		if err := tx.Create(&dispatchLine).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create dispatch line: %w", err)
		}

		if err := s.stock.Reserve(tx, target.ItemID, line.Quantity, ref); err != nil {
			tx.Rollback()
			return nil, err
		}

		if err := s.recomputeLineAggregates(tx, target.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := s.recomputeOrderStatus(tx, orderID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit dispatch transaction: %w", err)
	}

	return s.GetOrder(orderID)
}

// EditDispatch replaces a dispatch's line quantities, applying only the net
// change of each line to stock. Re-submitting the stored quantities computes
// zero deltas and is a safe no-op, so retries never double-debit.
func (s *Service) EditDispatch(ctx context.Context, dispatchID uint, req *EditDispatchRequest) (*Order, error) {
	event, err := s.getDispatchEvent(dispatchID)
	if err != nil {
		return nil, err
	}

	if req.ExpectedVersion != nil && *req.ExpectedVersion != event.Version {
		return nil, &VersionConflictError{Entity: "dispatch", ID: event.ID, Expected: *req.ExpectedVersion, Actual: event.Version}
	}

	newDate, err := validateEditDispatch(req)
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(event.OrderID)
	if err != nil {
		return nil, err
	}
	lineByID := mapLines(order.LineItems)

	for _, line := range req.Lines {
		if _, ok := lineByID[line.LineItemID]; !ok {
			return nil, &ValidationError{Field: "line_item_id", Reason: fmt.Sprintf("line %d does not belong to order %d", line.LineItemID, event.OrderID)}
		}
	}

	// The event's stored lines can change between the read above and lock
	// acquisition, so the union of the order's items is the only stable
	// lock set.
	itemIDs := make([]uint, 0, len(order.LineItems))
	for _, line := range order.LineItems {
		itemIDs = append(itemIDs, line.ItemID)
	}

	release, err := s.stock.Guard().Acquire(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	defer release()

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Deltas are planned from rows re-read under the locks; planning from
	// the pre-lock snapshot would let two concurrent edits both apply
	// against the same stored quantities.
	fresh, err := reloadDispatchEvent(tx, event.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != fresh.Version {
		tx.Rollback()
		return nil, &VersionConflictError{Entity: "dispatch", ID: fresh.ID, Expected: *req.ExpectedVersion, Actual: fresh.Version}
	}

	oldQuantities := make(map[uint]int, len(fresh.Lines))
	eventLineByID := make(map[uint]*DispatchLine, len(fresh.Lines))
	for i := range fresh.Lines {
		line := &fresh.Lines[i]
		oldQuantities[line.OrderLineItemID] = line.QuantitySent
		eventLineByID[line.OrderLineItemID] = line
	}

	deltas := planLineDeltas(oldQuantities, req.Lines)

	ref := stock.Reference{Type: stock.ReferenceDispatch, ID: fresh.ID}
	for _, delta := range deltas {
		target := lineByID[delta.LineItemID]

		switch {
		case delta.Delta > 0:
			if err := s.stock.Reserve(tx, target.ItemID, delta.Delta, ref); err != nil {
				tx.Rollback()
				return nil, err
			}
		case delta.Delta < 0:
			if err := s.stock.Release(tx, target.ItemID, -delta.Delta, ref); err != nil {
				tx.Rollback()
				return nil, err
			}
		}

		existing, hadLine := eventLineByID[delta.LineItemID]
		switch {
		case hadLine && delta.New == 0 && delta.Old != 0:
			// Keep the row with a zero quantity only when the payload still
			// names the line; removed lines drop their rows entirely.
			if containsLine(req.Lines, delta.LineItemID) {
				if err := tx.Model(existing).Update("quantity_sent", 0).Error; err != nil {
					tx.Rollback()
					return nil, fmt.Errorf("failed to update dispatch line: %w", err)
				}
			} else if err := tx.Delete(existing).Error; err != nil {
				tx.Rollback()
				return nil, fmt.Errorf("failed to delete dispatch line: %w", err)
			}
		case hadLine:
			if delta.New != delta.Old {
				if err := tx.Model(existing).Update("quantity_sent", delta.New).Error; err != nil {
					tx.Rollback()
					return nil, fmt.Errorf("failed to update dispatch line: %w", err)
				}
			}
		default:
			newLine := DispatchLine{
				DispatchEventID: fresh.ID,
				OrderLineItemID: delta.LineItemID,
				ItemID:          target.ItemID,
				QuantitySent:    delta.New,
			}
			if err := tx.Create(&newLine).Error; err != nil {
				tx.Rollback()
				return nil, fmt.Errorf("failed to create dispatch line: %w", err)
			}
		}

		if err := s.recomputeLineAggregates(tx, delta.LineItemID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	updates := map[string]interface{}{"version": fresh.Version + 1}
	if newDate != nil {
		updates["dispatch_date"] = *newDate
	}
	if req.ChallanNo != nil {
		updates["challan_no"] = *req.ChallanNo
	}
	if err := tx.Model(fresh).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update dispatch event: %w", err)
	}

	if err := s.recomputeOrderStatus(tx, event.OrderID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit dispatch edit: %w", err)
	}

	return s.GetOrder(event.OrderID)
}

// DeleteDispatch removes a dispatch event and credits its full quantities
// back to stock. A completed order reverts to pending when a balance
// re-opens.
func (s *Service) DeleteDispatch(ctx context.Context, dispatchID uint) (*Order, error) {
	event, err := s.getDispatchEvent(dispatchID)
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(event.OrderID)
	if err != nil {
		return nil, err
	}
	itemIDs := make([]uint, 0, len(order.LineItems))
	for _, line := range order.LineItems {
		itemIDs = append(itemIDs, line.ItemID)
	}

	release, err := s.stock.Guard().Acquire(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	defer release()

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Release what the event holds right now, not what it held before the
	// locks: a concurrent edit may have changed the stored quantities.
	fresh, err := reloadDispatchEvent(tx, event.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	ref := stock.Reference{Type: stock.ReferenceDispatch, ID: fresh.ID}
	for _, line := range fresh.Lines {
		if err := s.stock.Release(tx, line.ItemID, line.QuantitySent, ref); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Where("dispatch_event_id = ?", fresh.ID).Delete(&DispatchLine{}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to delete dispatch lines: %w", err)
	}
	if err := tx.Delete(&DispatchEvent{}, fresh.ID).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to delete dispatch event: %w", err)
	}

	for _, line := range fresh.Lines {
		if err := s.recomputeLineAggregates(tx, line.OrderLineItemID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := s.recomputeOrderStatus(tx, event.OrderID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit dispatch deletion: %w", err)
	}

	return s.GetOrder(event.OrderID)
}

// RETURN OPERATIONS

// CreateReturn records goods returned against an order line. The quantity
// may not exceed what was dispatched and not yet returned.
func (s *Service) CreateReturn(ctx context.Context, orderID uint, req *CreateReturnRequest) (*Order, error) {
	if err := validateReturnQuantity(req.Quantity); err != nil {
		return nil, err
	}
	if req.ChallanNumber == "" {
		return nil, &ValidationError{Field: "challan_number", Reason: "is required"}
	}
	returnDate, err := parseDate("return_date", req.ReturnDate)
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}

	line, ok := mapLines(order.LineItems)[req.LineItemID]
	if !ok {
		return nil, &ValidationError{Field: "line_item_id", Reason: fmt.Sprintf("line %d does not belong to order %d", req.LineItemID, orderID)}
	}

	if err := checkReturnCeiling(line, req.Quantity); err != nil {
		return nil, err
	}

	release, err := s.stock.Guard().Acquire(ctx, []uint{line.ItemID})
	if err != nil {
		return nil, err
	}
	defer release()

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// The pre-lock ceiling check can race another return; re-check against a
	// row re-read now that the item lock is held.
	var lockedLine OrderLineItem
	if err := tx.First(&lockedLine, line.ID).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to reload order line: %w", err)
	}
	if err := checkReturnCeiling(&lockedLine, req.Quantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	event := ReturnEvent{
		OrderID:         &orderID,
		OrderLineItemID: &lockedLine.ID,
		ItemID:          lockedLine.ItemID,
		ReturnDate:      returnDate,
		ChallanNumber:   req.ChallanNumber,
		Quantity:        req.Quantity,
		Remark:          req.Remark,
		Version:         1,
	}
	if err := tx.Create(&event).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create return event: %w", err)
	}

	ref := stock.Reference{Type: stock.ReferenceReturn, ID: event.ID}
	if err := s.stock.Release(tx, lockedLine.ItemID, req.Quantity, ref); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := s.recomputeLineAggregates(tx, lockedLine.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit return transaction: %w", err)
	}

	return s.GetOrder(orderID)
}

// CreateAdhocReturn logs a return without an order context; it only credits
// stock. The challan number is optional for this variant.
func (s *Service) CreateAdhocReturn(ctx context.Context, req *AdhocReturnRequest) (*ReturnEvent, error) {
	if err := validateReturnQuantity(req.Quantity); err != nil {
		return nil, err
	}
	returnDate, err := parseDate("return_date", req.ReturnDate)
	if err != nil {
		return nil, err
	}

	var item catalog.Item
	if err := s.db.First(&item, req.ItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ValidationError{Field: "item_id", Reason: fmt.Sprintf("item %d not found", req.ItemID)}
		}
		return nil, fmt.Errorf("failed to load item %d: %w", req.ItemID, err)
	}

	release, err := s.stock.Guard().Acquire(ctx, []uint{req.ItemID})
	if err != nil {
		return nil, err
	}
	defer release()

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if _, err := s.stock.EnsureAccount(tx, req.ItemID); err != nil {
		tx.Rollback()
		return nil, err
	}

	event := ReturnEvent{
		ItemID:        req.ItemID,
		ReturnDate:    returnDate,
		ChallanNumber: req.ChallanNumber,
		Quantity:      req.Quantity,
		Remark:        req.Remark,
		Version:       1,
	}
	if err := tx.Create(&event).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create return event: %w", err)
	}

	ref := stock.Reference{Type: stock.ReferenceReturn, ID: event.ID}
	if err := s.stock.Release(tx, req.ItemID, req.Quantity, ref); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit return transaction: %w", err)
	}

	return &event, nil
}

// EditReturn updates a return event with net-change stock discipline:
// increasing the quantity credits the difference, decreasing it debits the
// difference and fails if the warehouse has since been depleted.
// The updated order is returned for order-scoped returns, nil for ad-hoc.
func (s *Service) EditReturn(ctx context.Context, returnID uint, req *EditReturnRequest) (*Order, error) {
	event, err := s.getReturnEvent(returnID)
	if err != nil {
		return nil, err
	}

	if req.ExpectedVersion != nil && *req.ExpectedVersion != event.Version {
		return nil, &VersionConflictError{Entity: "return", ID: event.ID, Expected: *req.ExpectedVersion, Actual: event.Version}
	}

	if req.Quantity != nil {
		if err := validateReturnQuantity(*req.Quantity); err != nil {
			return nil, err
		}
	}

	var newDate *time.Time
	if req.ReturnDate != nil {
		parsed, err := parseDate("return_date", *req.ReturnDate)
		if err != nil {
			return nil, err
		}
		newDate = &parsed
	}
	if req.ChallanNumber != nil && !event.IsAdhoc() && *req.ChallanNumber == "" {
		return nil, &ValidationError{Field: "challan_number", Reason: "is required for order returns"}
	}

	release, err := s.stock.Guard().Acquire(ctx, []uint{event.ItemID})
	if err != nil {
		return nil, err
	}
	defer release()

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Quantity delta and ceiling come from rows re-read under the lock so
	// concurrent edits and returns serialize correctly.
	fresh, err := reloadReturnEvent(tx, event.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != fresh.Version {
		tx.Rollback()
		return nil, &VersionConflictError{Entity: "return", ID: fresh.ID, Expected: *req.ExpectedVersion, Actual: fresh.Version}
	}

	newQuantity := fresh.Quantity
	if req.Quantity != nil {
		newQuantity = *req.Quantity
	}
	delta := newQuantity - fresh.Quantity

	if delta > 0 && fresh.OrderLineItemID != nil {
		var line OrderLineItem
		if err := tx.First(&line, *fresh.OrderLineItemID).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to reload order line: %w", err)
		}
		// The stored quantity is already counted in ReturnedQuantity, so the
		// ceiling for the new total is old + still-returnable.
		maxNew := fresh.Quantity + line.MaxReturnable()
		if newQuantity > maxNew {
			tx.Rollback()
			return nil, &ReturnExceedsDispatchedError{
				ItemID:        line.ItemID,
				Requested:     newQuantity,
				MaxReturnable: maxNew,
			}
		}
	}

	ref := stock.Reference{Type: stock.ReferenceReturn, ID: fresh.ID}
	switch {
	case delta > 0:
		if err := s.stock.Release(tx, fresh.ItemID, delta, ref); err != nil {
			tx.Rollback()
			return nil, err
		}
	case delta < 0:
		if err := s.stock.Reserve(tx, fresh.ItemID, -delta, ref); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	updates := map[string]interface{}{"version": fresh.Version + 1}
	if req.Quantity != nil {
		updates["quantity"] = newQuantity
	}
	if newDate != nil {
		updates["return_date"] = *newDate
	}
	if req.ChallanNumber != nil {
		updates["challan_number"] = *req.ChallanNumber
	}
	if req.Remark != nil {
		updates["remark"] = *req.Remark
	}
	if err := tx.Model(fresh).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update return event: %w", err)
	}

	if fresh.OrderLineItemID != nil {
		if err := s.recomputeLineAggregates(tx, *fresh.OrderLineItemID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit return edit: %w", err)
	}

	if fresh.OrderID == nil {
		return nil, nil
	}
	return s.GetOrder(*fresh.OrderID)
}

// DeleteReturn reverses a return's stock credit and removes the event. It
// fails with InsufficientStock when the returned goods were already
// re-dispatched elsewhere, which is a reportable conflict rather than a
// silent no-op.
func (s *Service) DeleteReturn(ctx context.Context, returnID uint) (*Order, error) {
	event, err := s.getReturnEvent(returnID)
	if err != nil {
		return nil, err
	}

	release, err := s.stock.Guard().Acquire(ctx, []uint{event.ItemID})
	if err != nil {
		return nil, err
	}
	defer release()

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Reverse the quantity stored right now; a concurrent edit may have
	// changed it since the pre-lock read.
	fresh, err := reloadReturnEvent(tx, event.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	ref := stock.Reference{Type: stock.ReferenceReturn, ID: fresh.ID}
	if err := s.stock.Reserve(tx, fresh.ItemID, fresh.Quantity, ref); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Delete(fresh).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to delete return event: %w", err)
	}

	if fresh.OrderLineItemID != nil {
		if err := s.recomputeLineAggregates(tx, *fresh.OrderLineItemID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit return deletion: %w", err)
	}

	if fresh.OrderID == nil {
		return nil, nil
	}
	return s.GetOrder(*fresh.OrderID)
}

// HISTORY PROJECTIONS

// GetDispatchHistory returns the grouped dispatch report for an order.
func (s *Service) GetDispatchHistory(orderID uint) (*History, error) {
	order, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}

	var events []DispatchEvent
	if err := s.db.Preload("Lines").
		Where("order_id = ?", orderID).
		Order("dispatch_date, challan_no").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve dispatch events: %w", err)
	}

	return BuildDispatchHistory(order.LineItems, events), nil
}

// GetReturnHistory returns the grouped return report for an order.
func (s *Service) GetReturnHistory(orderID uint) (*History, error) {
	order, err := s.GetOrder(orderID)
	if err != nil {
		return nil, err
	}

	var events []ReturnEvent
	if err := s.db.
		Where("order_id = ?", orderID).
		Order("return_date, challan_number").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve return events: %w", err)
	}

	return BuildReturnHistory(order.LineItems, events), nil
}

// Private helper methods

func (s *Service) getDispatchEvent(id uint) (*DispatchEvent, error) {
	var event DispatchEvent
	if err := s.db.Preload("Lines").First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("dispatch %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve dispatch event: %w", err)
	}
	return &event, nil
}

func (s *Service) getReturnEvent(id uint) (*ReturnEvent, error) {
	var event ReturnEvent
	if err := s.db.First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("return %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve return event: %w", err)
	}
	return &event, nil
}

// reloadDispatchEvent re-reads a dispatch event inside a transaction after
// the item locks are held. Mutations must work from this row, not the
// pre-lock snapshot.
func reloadDispatchEvent(tx *gorm.DB, id uint) (*DispatchEvent, error) {
	var event DispatchEvent
	if err := tx.Preload("Lines").First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("dispatch %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to reload dispatch event: %w", err)
	}
	return &event, nil
}

func reloadReturnEvent(tx *gorm.DB, id uint) (*ReturnEvent, error) {
	var event ReturnEvent
	if err := tx.First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("return %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to reload return event: %w", err)
	}
	return &event, nil
}

// recomputeLineAggregates rebuilds a line's cached dispatched/returned
// quantities from the event logs. The events are the source of truth; the
// columns are a replayable cache.
func (s *Service) recomputeLineAggregates(tx *gorm.DB, lineItemID uint) error {
	var dispatched int64
	if err := tx.Model(&DispatchLine{}).
		Where("order_line_item_id = ?", lineItemID).
		Select("COALESCE(SUM(quantity_sent), 0)").
		Scan(&dispatched).Error; err != nil {
		return fmt.Errorf("failed to sum dispatched quantity: %w", err)
	}

	var returned int64
	if err := tx.Model(&ReturnEvent{}).
		Where("order_line_item_id = ?", lineItemID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&returned).Error; err != nil {
		return fmt.Errorf("failed to sum returned quantity: %w", err)
	}

	if err := tx.Model(&OrderLineItem{}).
		Where("id = ?", lineItemID).
		Updates(map[string]interface{}{
			"dispatched_quantity": dispatched,
			"returned_quantity":   returned,
		}).Error; err != nil {
		return fmt.Errorf("failed to update line aggregates: %w", err)
	}

	return nil
}

// recomputeOrderStatus re-derives the order status after every mutation:
// completed iff every line's balance is zero. The transition is reversible
// when a deletion or reduction re-opens a balance.
func (s *Service) recomputeOrderStatus(tx *gorm.DB, orderID uint) error {
	var lines []OrderLineItem
	if err := tx.Where("order_id = ?", orderID).Find(&lines).Error; err != nil {
		return fmt.Errorf("failed to load order lines: %w", err)
	}

	status := OrderStatusCompleted
	if len(lines) == 0 {
		status = OrderStatusPending
	}
	for _, line := range lines {
		if line.Balance() != 0 {
			status = OrderStatusPending
			break
		}
	}

	if err := tx.Model(&Order{}).Where("id = ?", orderID).Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

func mapLines(lines []OrderLineItem) map[uint]*OrderLineItem {
	byID := make(map[uint]*OrderLineItem, len(lines))
	for i := range lines {
		byID[lines[i].ID] = &lines[i]
	}
	return byID
}

func containsLine(lines []DispatchLineRequest, lineItemID uint) bool {
	for _, line := range lines {
		if line.LineItemID == lineItemID {
			return true
		}
	}
	return false
}
