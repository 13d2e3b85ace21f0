// internal/domain/party/service.go
package party

import (
	"errors"
	"fmt"

	"github.com/your-org/distribution-backend/internal/config"
	"gorm.io/gorm"
)

// Service handles party master-data lookups
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new party service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// CreatePartyRequest represents party creation data
type CreatePartyRequest struct {
	Name      string `json:"party_name" binding:"required"`
	ContactNo string `json:"contact_no"`
	Address   string `json:"address"`
}

// CreateParty creates a new party
func (s *Service) CreateParty(req *CreatePartyRequest) (*Party, error) {
	p := &Party{
		Name:      req.Name,
		ContactNo: req.ContactNo,
		Address:   req.Address,
	}

	if err := s.db.Create(p).Error; err != nil {
		return nil, fmt.Errorf("failed to create party: %w", err)
	}

	return p, nil
}

// GetParties retrieves all parties
func (s *Service) GetParties() ([]Party, error) {
	var parties []Party
	if err := s.db.Order("name").Find(&parties).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve parties: %w", err)
	}
	return parties, nil
}

// GetParty retrieves a single party by ID
func (s *Service) GetParty(id uint) (*Party, error) {
	var p Party
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("party %d not found", id)
		}
		return nil, fmt.Errorf("failed to retrieve party: %w", err)
	}
	return &p, nil
}
