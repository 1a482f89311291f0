package domain

import "time"

// RawRecord statuses. Records are never deleted; the table doubles as the
// replay log for materialization.
const (
	RawStatusPending      = "pending"
	RawStatusMaterialized = "materialized"
	RawStatusExcluded     = "excluded"
	RawStatusFailed       = "failed"
)

// Folders, processed in this priority order: sent first so style learning
// sees the owner's own messages earliest.
const (
	FolderSent     = "sent"
	FolderReceived = "received"
)

// RawRecord is one externally-sourced message exactly as fetched. Created by
// the ingestion cursor, mutated only by materialization status transitions.
type RawRecord struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	WorkspaceID string    `json:"workspace_id" gorm:"uniqueIndex:idx_workspace_external;not null"`
	ExternalID  string    `json:"external_id" gorm:"uniqueIndex:idx_workspace_external;not null"`
	ThreadID    string    `json:"thread_id" gorm:"index"`
	Folder      string    `json:"folder"`
	FromAddress string    `json:"from_address"`
	ToAddresses string    `json:"to_addresses"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sent_at"`
	Status      string    `json:"status" gorm:"index;default:pending"`
	LastError   string    `json:"last_error"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
