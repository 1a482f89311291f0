package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Audit outcomes. One AuditEntry is written per terminal job outcome.
const (
	OutcomeProcessed    = "processed"
	OutcomeFailed       = "failed"
	OutcomeDiscarded    = "discarded"
	OutcomeDeadlettered = "deadlettered"
	OutcomeRequeued     = "requeued"
)

// Incident severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// PipelineRun aggregates one invocation's metrics. Append-once, patched only
// while the invocation is still running.
type PipelineRun struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	WorkspaceID string     `json:"workspace_id" gorm:"index"`
	Stage       string     `json:"stage"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Fetched     int        `json:"fetched"`
	Processed   int        `json:"processed"`
	Failed      int        `json:"failed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Incident is a severity-tagged failure record tied to a workspace.
// Write-once; never mutated.
type Incident struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	WorkspaceID string         `json:"workspace_id" gorm:"index"`
	Severity    string         `json:"severity"`
	Source      string         `json:"source"`
	Message     string         `json:"message"`
	Context     datatypes.JSON `json:"context"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AuditEntry is one row per terminal job outcome. Write-once; never mutated.
type AuditEntry struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	WorkspaceID string    `json:"workspace_id" gorm:"index"`
	Queue       string    `json:"queue"`
	JobID       string    `json:"job_id" gorm:"index"`
	Outcome     string    `json:"outcome"`
	Attempts    int       `json:"attempts"`
	Detail      string    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}
