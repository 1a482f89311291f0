package repository

import (
	"errors"
	"time"

	"inboxpilot-backend/internal/ingestion/domain"

	"gorm.io/gorm"
)

type importCursorRepository struct {
	db *gorm.DB
}

func NewImportCursorRepository(db *gorm.DB) ImportCursorRepository {
	return &importCursorRepository{db: db}
}

func (r *importCursorRepository) GetOrCreate(workspaceID string) (*domain.ImportCursor, error) {
	var cursor domain.ImportCursor
	err := r.db.Where("workspace_id = ?", workspaceID).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = domain.ImportCursor{
			WorkspaceID:   workspaceID,
			CurrentFolder: domain.FolderSent,
			Phase:         domain.PhaseImporting,
			HeartbeatAt:   time.Now().UTC(),
		}
		if err := r.db.Create(&cursor).Error; err != nil {
			return nil, err
		}
		return &cursor, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

func (r *importCursorRepository) Save(cursor *domain.ImportCursor) error {
	cursor.HeartbeatAt = time.Now().UTC()
	cursor.UpdatedAt = cursor.HeartbeatAt
	return r.db.Save(cursor).Error
}
