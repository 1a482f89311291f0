package repository

import (
	"inboxpilot-backend/internal/ingestion/domain"
)

type RawRecordRepository interface {
	// UpsertBatch inserts records with ignore-duplicate semantics keyed on
	// (workspace_id, external_id). Returns the count actually inserted, so
	// replays of the same page are free.
	UpsertBatch(records []domain.RawRecord) (int, error)
	GetByID(id string) (*domain.RawRecord, error)
	// ListPendingIDs resolves the durable ids of records among externalIDs
	// that still await materialization. Producers enqueue jobs off this set,
	// so replayed pages re-enqueue pending work but never terminal records.
	ListPendingIDs(workspaceID string, externalIDs []string) ([]string, error)
	MarkStatus(id, status, lastError string) error
	// MarkFailedUnlessMaterialized guards deadlettering a job whose effect
	// actually landed before the crash.
	MarkFailedUnlessMaterialized(id, lastError string) error
	CountByWorkspace(workspaceID string) (int64, error)
}

type ImportCursorRepository interface {
	GetOrCreate(workspaceID string) (*domain.ImportCursor, error)
	Save(cursor *domain.ImportCursor) error
}
