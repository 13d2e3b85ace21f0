// internal/interfaces/http/handlers/respond.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/distribution-backend/internal/domain/catalog"
	"github.com/your-org/distribution-backend/internal/domain/order"
	"github.com/your-org/distribution-backend/internal/domain/stock"
)

// respondError maps ledger errors onto HTTP statuses. Validation problems are
// 400, missing records 404, business-rule breaches that depend on current
// state (stock floor, stale version, lock contention) are 409, and a return
// above its ceiling is 422.
func respondError(c *gin.Context, err error) {
	var validationErr *order.ValidationError
	var ceilingErr *order.ReturnExceedsDispatchedError
	var stockErr *stock.InsufficientStockError
	var versionErr *order.VersionConflictError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": validationErr,
		})
	case errors.As(err, &ceilingErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Return exceeds dispatched quantity",
			"details": ceilingErr,
		})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Insufficient stock",
			"details": stockErr,
		})
	case errors.As(err, &versionErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Concurrent modification",
			"details": versionErr,
		})
	case errors.Is(err, stock.ErrLockTimeout):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Operation timed out waiting for stock locks, please retry",
		})
	case errors.Is(err, order.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, catalog.ErrItemReferenced):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	}
}

// parseIDParam reads a numeric path parameter.
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return uint(value), true
}
