// internal/interfaces/http/handlers/dispatch.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/your-org/distribution-backend/internal/config"
	"github.com/your-org/distribution-backend/internal/domain/order"
	"github.com/your-org/distribution-backend/internal/domain/stock"
)

// DispatchHandler handles dispatch endpoints
type DispatchHandler struct {
	orderService *order.Service
	config       *config.Config
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(db *gorm.DB, cfg *config.Config, stockService *stock.Service) *DispatchHandler {
	return &DispatchHandler{
		orderService: order.NewService(db, cfg, stockService),
		config:       cfg,
	}
}

// CreateDispatch handles POST /orders/:id/dispatches
func (h *DispatchHandler) CreateDispatch(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req order.CreateDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	updated, err := h.orderService.CreateDispatch(c.Request.Context(), orderID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Dispatch recorded successfully",
		"data":    updated,
	})
}

// EditDispatch handles PUT /dispatches/:id
func (h *DispatchHandler) EditDispatch(c *gin.Context) {
	dispatchID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req order.EditDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	updated, err := h.orderService.EditDispatch(c.Request.Context(), dispatchID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Dispatch updated successfully",
		"data":    updated,
	})
}

// DeleteDispatch handles DELETE /dispatches/:id
func (h *DispatchHandler) DeleteDispatch(c *gin.Context) {
	dispatchID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	updated, err := h.orderService.DeleteDispatch(c.Request.Context(), dispatchID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Dispatch deleted successfully",
		"data":    updated,
	})
}

// GetDispatchHistory handles GET /orders/:id/dispatches
func (h *DispatchHandler) GetDispatchHistory(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	history, err := h.orderService.GetDispatchHistory(orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Dispatch history retrieved successfully",
		"data":    history,
	})
}
