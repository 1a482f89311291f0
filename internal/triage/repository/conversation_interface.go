package repository

import (
	"time"

	"inboxpilot-backend/internal/triage/domain"
)

// TriageUpdate is the set of classifier-owned fields written back after a
// cascade or AI pass. Only non-nil fields are persisted.
type TriageUpdate struct {
	DecisionBucket *string
	CognitiveLoad  *string
	RiskLevel      *string
	Justification  *string
	Category       *string
	Priority       *string
	Intent         *string
	Lane           *string
	Sentiment      *string
	RequiresReply  *bool
	Confidence     *float64
}

type ConversationRepository interface {
	GetByID(id string) (*domain.Conversation, error)
	// FindOrCreateByThread creates the conversation on first sighting of a
	// thread, with initial triage defaults.
	FindOrCreateByThread(conv *domain.Conversation) (*domain.Conversation, bool, error)
	// Touch bumps updated_at, message_count and last_message_at after a new
	// message lands in an existing conversation.
	Touch(id string, lastMessageAt time.Time) error
	UpdateTriage(id string, update TriageUpdate) error
	// ListUnclassified returns conversations the classifier has not bucketed.
	ListUnclassified(workspaceID string, limit int) ([]domain.Conversation, error)
	// ListClassified pages through already-bucketed conversations for
	// backfill. bucket "" means all buckets.
	ListClassified(workspaceID, bucket string, limit, offset int) ([]domain.Conversation, error)
	CountByBucket(workspaceID string) (map[string]int64, error)
}
