package repository

import (
	"time"

	"inboxpilot-backend/internal/triage/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) GetByID(id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) FindOrCreateByThread(conv *domain.Conversation) (*domain.Conversation, bool, error) {
	now := time.Now().UTC()
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	conv.CreatedAt = now
	conv.UpdatedAt = now

	// The generated id and timestamps go in Attrs, never in the lookup
	// conditions; otherwise the fresh uuid makes the lookup miss every time
	// and the insert trips the (workspace_id, thread_id) unique index.
	var existing domain.Conversation
	res := r.db.Where("workspace_id = ? AND thread_id = ?", conv.WorkspaceID, conv.ThreadID).
		Attrs(*conv).
		FirstOrCreate(&existing)
	if res.Error != nil {
		return nil, false, res.Error
	}
	created := res.RowsAffected > 0
	return &existing, created, nil
}

func (r *conversationRepository) Touch(id string, lastMessageAt time.Time) error {
	return r.db.Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"message_count":   gorm.Expr("message_count + 1"),
			"last_message_at": lastMessageAt,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *conversationRepository) UpdateTriage(id string, update TriageUpdate) error {
	fields := map[string]interface{}{}
	if update.DecisionBucket != nil {
		fields["decision_bucket"] = *update.DecisionBucket
	}
	if update.CognitiveLoad != nil {
		fields["cognitive_load"] = *update.CognitiveLoad
	}
	if update.RiskLevel != nil {
		fields["risk_level"] = *update.RiskLevel
	}
	if update.Justification != nil {
		fields["justification"] = *update.Justification
	}
	if update.Category != nil {
		fields["category"] = *update.Category
	}
	if update.Priority != nil {
		fields["priority"] = *update.Priority
	}
	if update.Intent != nil {
		fields["intent"] = *update.Intent
	}
	if update.Lane != nil {
		fields["lane"] = *update.Lane
	}
	if update.Sentiment != nil {
		fields["sentiment"] = *update.Sentiment
	}
	if update.RequiresReply != nil {
		fields["requires_reply"] = *update.RequiresReply
	}
	if update.Confidence != nil {
		fields["confidence"] = *update.Confidence
	}
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	return r.db.Model(&domain.Conversation{}).Where("id = ?", id).Updates(fields).Error
}

func (r *conversationRepository) ListUnclassified(workspaceID string, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	var convs []domain.Conversation
	err := r.db.Where("workspace_id = ? AND (decision_bucket IS NULL OR decision_bucket = '')", workspaceID).
		Order("last_message_at DESC").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}

func (r *conversationRepository) ListClassified(workspaceID, bucket string, limit, offset int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.Where("workspace_id = ? AND decision_bucket <> ''", workspaceID)
	if bucket != "" {
		q = q.Where("decision_bucket = ?", bucket)
	}
	var convs []domain.Conversation
	err := q.Order("created_at ASC").Limit(limit).Offset(offset).Find(&convs).Error
	return convs, err
}

func (r *conversationRepository) CountByBucket(workspaceID string) (map[string]int64, error) {
	type row struct {
		DecisionBucket string
		N              int64
	}
	var rows []row
	err := r.db.Model(&domain.Conversation{}).
		Select("decision_bucket, count(*) as n").
		Where("workspace_id = ?", workspaceID).
		Group("decision_bucket").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.DecisionBucket] = r.N
	}
	return out, nil
}
