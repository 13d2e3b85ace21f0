// internal/interfaces/http/handlers/stock.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/distribution-backend/internal/config"
	"github.com/your-org/distribution-backend/internal/domain/stock"
)

// StockHandler handles stock account endpoints
type StockHandler struct {
	stockService *stock.Service
	config       *config.Config
}

// NewStockHandler creates a new stock handler. The stock service is shared
// with the order handler so both go through the same per-item locks.
func NewStockHandler(stockService *stock.Service, cfg *config.Config) *StockHandler {
	return &StockHandler{
		stockService: stockService,
		config:       cfg,
	}
}

// GetStock handles GET /stock/:itemId
func (h *StockHandler) GetStock(c *gin.Context) {
	itemID, ok := parseIDParam(c, "itemId")
	if !ok {
		return
	}

	available, err := h.stockService.Peek(itemID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock retrieved successfully",
		"data": gin.H{
			"item_id":            itemID,
			"available_quantity": available,
		},
	})
}

// AdjustStock handles POST /stock/adjust
func (h *StockHandler) AdjustStock(c *gin.Context) {
	var req stock.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	account, err := h.stockService.Adjust(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock adjusted successfully",
		"data":    account,
	})
}

// GetStockMovements handles GET /stock/:itemId/movements
func (h *StockHandler) GetStockMovements(c *gin.Context) {
	itemID, ok := parseIDParam(c, "itemId")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	movements, err := h.stockService.GetMovements(itemID, limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock movements retrieved successfully",
		"data":    movements,
	})
}
