package repository

import (
	"inboxpilot-backend/internal/pipeline/domain"
)

type AuditRepository interface {
	Append(entry *domain.AuditEntry) error
	ListByWorkspace(workspaceID string, limit int) ([]domain.AuditEntry, error)
}

type IncidentRepository interface {
	Append(incident *domain.Incident) error
	ListByWorkspace(workspaceID string, limit int) ([]domain.Incident, error)
}

type PipelineRunRepository interface {
	Create(run *domain.PipelineRun) error
	Finish(runID string, fetched, processed, failed int) error
}
