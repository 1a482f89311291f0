package repository

import (
	"time"

	"inboxpilot-backend/internal/pipeline/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(entry *domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()
	return r.db.Create(entry).Error
}

func (r *auditRepository) ListByWorkspace(workspaceID string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []domain.AuditEntry
	err := r.db.Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

type incidentRepository struct {
	db *gorm.DB
}

func NewIncidentRepository(db *gorm.DB) IncidentRepository {
	return &incidentRepository{db: db}
}

func (r *incidentRepository) Append(incident *domain.Incident) error {
	if incident.ID == "" {
		incident.ID = uuid.New().String()
	}
	incident.CreatedAt = time.Now().UTC()
	return r.db.Create(incident).Error
}

func (r *incidentRepository) ListByWorkspace(workspaceID string, limit int) ([]domain.Incident, error) {
	if limit <= 0 {
		limit = 100
	}
	var incidents []domain.Incident
	err := r.db.Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&incidents).Error
	return incidents, err
}

type pipelineRunRepository struct {
	db *gorm.DB
}

func NewPipelineRunRepository(db *gorm.DB) PipelineRunRepository {
	return &pipelineRunRepository{db: db}
}

func (r *pipelineRunRepository) Create(run *domain.PipelineRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	return r.db.Create(run).Error
}

func (r *pipelineRunRepository) Finish(runID string, fetched, processed, failed int) error {
	now := time.Now().UTC()
	return r.db.Model(&domain.PipelineRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"finished_at": now,
			"fetched":     fetched,
			"processed":   processed,
			"failed":      failed,
		}).Error
}
