package repository

import (
	"time"

	"inboxpilot-backend/internal/triage/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type customerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) FindOrCreate(workspaceID, email, name string) (*domain.Customer, error) {
	now := time.Now().UTC()
	customer := domain.Customer{}

	// FirstOrCreate keeps this idempotent under concurrent materializers; the
	// unique index on (workspace_id, email) is the real guarantee. The new id
	// and timestamps are Attrs only, so the lookup matches existing rows.
	err := r.db.Where("workspace_id = ? AND email = ?", workspaceID, email).
		Attrs(domain.Customer{
			ID:          uuid.New().String(),
			WorkspaceID: workspaceID,
			Email:       email,
			Name:        name,
			FirstSeenAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}).
		FirstOrCreate(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) GetByID(id string) (*domain.Customer, error) {
	var customer domain.Customer
	if err := r.db.Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}
