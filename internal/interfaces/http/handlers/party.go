// internal/interfaces/http/handlers/party.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/your-org/distribution-backend/internal/config"
	"github.com/your-org/distribution-backend/internal/domain/party"
)

// PartyHandler handles party master-data endpoints
type PartyHandler struct {
	partyService *party.Service
	config       *config.Config
}

// NewPartyHandler creates a new party handler
func NewPartyHandler(db *gorm.DB, cfg *config.Config) *PartyHandler {
	return &PartyHandler{
		partyService: party.NewService(db, cfg),
		config:       cfg,
	}
}

// CreateParty handles POST /parties
func (h *PartyHandler) CreateParty(c *gin.Context) {
	var req party.CreatePartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	p, err := h.partyService.CreateParty(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Party created successfully",
		"data":    p,
	})
}

// GetParties handles GET /parties
func (h *PartyHandler) GetParties(c *gin.Context) {
	parties, err := h.partyService.GetParties()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve parties",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Parties retrieved successfully",
		"data":    parties,
	})
}

// GetParty handles GET /parties/:id
func (h *PartyHandler) GetParty(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	p, err := h.partyService.GetParty(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Party retrieved successfully",
		"data":    p,
	})
}
