// internal/interfaces/http/handlers/return.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/your-org/distribution-backend/internal/config"
	"github.com/your-org/distribution-backend/internal/domain/order"
	"github.com/your-org/distribution-backend/internal/domain/stock"
)

// ReturnHandler handles return endpoints
type ReturnHandler struct {
	orderService *order.Service
	config       *config.Config
}

// NewReturnHandler creates a new return handler
func NewReturnHandler(db *gorm.DB, cfg *config.Config, stockService *stock.Service) *ReturnHandler {
	return &ReturnHandler{
		orderService: order.NewService(db, cfg, stockService),
		config:       cfg,
	}
}

// CreateReturn handles POST /orders/:id/returns
func (h *ReturnHandler) CreateReturn(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req order.CreateReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	updated, err := h.orderService.CreateReturn(c.Request.Context(), orderID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Return recorded successfully",
		"data":    updated,
	})
}

// CreateAdhocReturn handles POST /returns
func (h *ReturnHandler) CreateAdhocReturn(c *gin.Context) {
	var req order.AdhocReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	event, err := h.orderService.CreateAdhocReturn(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Return recorded successfully",
		"data":    event,
	})
}

// EditReturn handles PUT /returns/:id
func (h *ReturnHandler) EditReturn(c *gin.Context) {
	returnID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req order.EditReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	updated, err := h.orderService.EditReturn(c.Request.Context(), returnID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Return updated successfully",
		"data":    updated,
	})
}

// DeleteReturn handles DELETE /returns/:id
func (h *ReturnHandler) DeleteReturn(c *gin.Context) {
	returnID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	updated, err := h.orderService.DeleteReturn(c.Request.Context(), returnID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Return deleted successfully",
		"data":    updated,
	})
}

// GetReturnHistory handles GET /orders/:id/returns
func (h *ReturnHandler) GetReturnHistory(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	history, err := h.orderService.GetReturnHistory(orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Return history retrieved successfully",
		"data":    history,
	})
}
