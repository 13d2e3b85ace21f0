// internal/domain/order/history.go
package order

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// The history aggregator is a pure projection over the event logs. It holds
// no state of its own and is rebuilt on every read, so it cannot go stale:
// summing its rows for a line always equals that line's cached aggregate
// because both are derived from the same events.

// HistoryColumn describes one order line across all shipment rows.
type HistoryColumn struct {
	LineItemID      uint            `json:"line_item_id"`
	ItemID          uint            `json:"item_id"`
	ItemName        string          `json:"item_name"`
	Size            string          `json:"size"`
	UnitWeight      decimal.Decimal `json:"unit_weight"`
	OrderedQuantity int             `json:"ordered_quantity"`
}

// HistoryRow is one shipment (or return consignment): all events sharing the
// same date and challan number, merged.
type HistoryRow struct {
	Date          time.Time                `json:"date"`
	ChallanNo     string                   `json:"challan_no"`
	Quantities    map[uint]int             `json:"quantities"` // keyed by line_item_id
	Weights       map[uint]decimal.Decimal `json:"weights"`
	TotalQuantity int                      `json:"total_quantity"`
	TotalWeight   decimal.Decimal          `json:"total_weight"`
}

// History is the grouped report for one order: per-row quantities and
// weights, column totals, and a pending row.
type History struct {
	Columns       []HistoryColumn          `json:"columns"`
	Rows          []HistoryRow             `json:"rows"`
	ColumnTotals  map[uint]int             `json:"column_totals"`
	ColumnWeights map[uint]decimal.Decimal `json:"column_weights"`
	TotalQuantity int                      `json:"total_quantity"`
	TotalWeight   decimal.Decimal          `json:"total_weight"`
	// Pending per line: ordered - dispatched for dispatch history,
	// dispatched - returned (still returnable) for return history.
	Pending map[uint]int `json:"pending"`
}

type rowKey struct {
	date    string
	challan string
}

// BuildDispatchHistory groups an order's dispatch events by (date, challan)
// and computes running totals and the pending row.
func BuildDispatchHistory(lines []OrderLineItem, events []DispatchEvent) *History {
	h := newHistory(lines)
	grouped := make(map[rowKey]*HistoryRow)

	for _, event := range events {
		row := h.rowFor(grouped, event.DispatchDate, event.ChallanNo)
		for _, line := range event.Lines {
			h.add(row, line.OrderLineItemID, line.QuantitySent)
		}
	}

	h.finish(grouped)
	for _, line := range lines {
		h.Pending[line.ID] = line.OrderedQuantity - h.ColumnTotals[line.ID]
	}
	return h
}

// BuildReturnHistory groups an order's return events the same way; the
// pending row reports what can still be returned per line.
func BuildReturnHistory(lines []OrderLineItem, events []ReturnEvent) *History {
	h := newHistory(lines)
	grouped := make(map[rowKey]*HistoryRow)

	for _, event := range events {
		if event.OrderLineItemID == nil {
			continue
		}
		row := h.rowFor(grouped, event.ReturnDate, event.ChallanNumber)
		h.add(row, *event.OrderLineItemID, event.Quantity)
	}

	h.finish(grouped)
	for _, line := range lines {
		h.Pending[line.ID] = line.DispatchedQuantity - h.ColumnTotals[line.ID]
	}
	return h
}

func newHistory(lines []OrderLineItem) *History {
	columns := make([]HistoryColumn, 0, len(lines))
	for _, line := range lines {
		columns = append(columns, HistoryColumn{
			LineItemID:      line.ID,
			ItemID:          line.ItemID,
			ItemName:        line.ItemName,
			Size:            line.Size,
			UnitWeight:      line.UnitWeight,
			OrderedQuantity: line.OrderedQuantity,
		})
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].LineItemID < columns[j].LineItemID })

	return &History{
		Columns:       columns,
		Rows:          []HistoryRow{},
		ColumnTotals:  make(map[uint]int, len(lines)),
		ColumnWeights: make(map[uint]decimal.Decimal, len(lines)),
		TotalWeight:   decimal.Zero,
		Pending:       make(map[uint]int, len(lines)),
	}
}

func (h *History) rowFor(grouped map[rowKey]*HistoryRow, date time.Time, challan string) *HistoryRow {
	key := rowKey{date: date.Format(DateLayout), challan: challan}
	row, ok := grouped[key]
	if !ok {
		row = &HistoryRow{
			Date:        date,
			ChallanNo:   challan,
			Quantities:  make(map[uint]int),
			Weights:     make(map[uint]decimal.Decimal),
			TotalWeight: decimal.Zero,
		}
		grouped[key] = row
	}
	return row
}

func (h *History) add(row *HistoryRow, lineItemID uint, qty int) {
	weight := h.unitWeightOf(lineItemID).Mul(decimal.NewFromInt(int64(qty)))

	row.Quantities[lineItemID] += qty
	row.Weights[lineItemID] = row.Weights[lineItemID].Add(weight)
	row.TotalQuantity += qty
	row.TotalWeight = row.TotalWeight.Add(weight)

	h.ColumnTotals[lineItemID] += qty
	h.ColumnWeights[lineItemID] = h.ColumnWeights[lineItemID].Add(weight)
	h.TotalQuantity += qty
	h.TotalWeight = h.TotalWeight.Add(weight)
}

func (h *History) unitWeightOf(lineItemID uint) decimal.Decimal {
	for _, col := range h.Columns {
		if col.LineItemID == lineItemID {
			return col.UnitWeight
		}
	}
	return decimal.Zero
}

func (h *History) finish(grouped map[rowKey]*HistoryRow) {
	for _, row := range grouped {
		h.Rows = append(h.Rows, *row)
	}
	sort.Slice(h.Rows, func(i, j int) bool {
		if !h.Rows[i].Date.Equal(h.Rows[j].Date) {
			return h.Rows[i].Date.Before(h.Rows[j].Date)
		}
		return h.Rows[i].ChallanNo < h.Rows[j].ChallanNo
	})
}
