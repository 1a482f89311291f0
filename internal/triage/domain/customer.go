package domain

import "time"

// Customer is a workspace-scoped contact, created lazily on first sighting of
// an address that is not part of the owner's identity set. Exactly one row
// per (workspace, normalized email).
type Customer struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	WorkspaceID string    `json:"workspace_id" gorm:"uniqueIndex:idx_workspace_customer_email;not null"`
	Email       string    `json:"email" gorm:"uniqueIndex:idx_workspace_customer_email;not null"`
	Name        string    `json:"name"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
