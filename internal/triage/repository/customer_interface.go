package repository

import "inboxpilot-backend/internal/triage/domain"

type CustomerRepository interface {
	// FindOrCreate resolves the single customer row for a normalized address,
	// creating it on first sighting.
	FindOrCreate(workspaceID, email, name string) (*domain.Customer, error)
	GetByID(id string) (*domain.Customer, error)
}
