package repository

import (
	"time"

	"inboxpilot-backend/internal/ingestion/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type rawRecordRepository struct {
	db *gorm.DB
}

func NewRawRecordRepository(db *gorm.DB) RawRecordRepository {
	return &rawRecordRepository{db: db}
}

func (r *rawRecordRepository) UpsertBatch(records []domain.RawRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.New().String()
		}
		if records[i].Status == "" {
			records[i].Status = domain.RawStatusPending
		}
		records[i].CreatedAt = now
		records[i].UpdatedAt = now
	}

	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "external_id"}},
		DoNothing: true,
	}).CreateInBatches(records, 100)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *rawRecordRepository) GetByID(id string) (*domain.RawRecord, error) {
	var record domain.RawRecord
	if err := r.db.Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *rawRecordRepository) ListPendingIDs(workspaceID string, externalIDs []string) ([]string, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := r.db.Model(&domain.RawRecord{}).
		Where("workspace_id = ? AND external_id IN ? AND status = ?", workspaceID, externalIDs, domain.RawStatusPending).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *rawRecordRepository) MarkStatus(id, status, lastError string) error {
	return r.db.Model(&domain.RawRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *rawRecordRepository) MarkFailedUnlessMaterialized(id, lastError string) error {
	return r.db.Model(&domain.RawRecord{}).
		Where("id = ? AND status NOT IN ?", id, []string{domain.RawStatusMaterialized, domain.RawStatusExcluded}).
		Updates(map[string]interface{}{
			"status":     domain.RawStatusFailed,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *rawRecordRepository) CountByWorkspace(workspaceID string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.RawRecord{}).Where("workspace_id = ?", workspaceID).Count(&count).Error
	return count, err
}
