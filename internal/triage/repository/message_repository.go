package repository

import (
	"errors"
	"time"

	"inboxpilot-backend/internal/triage/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Exists(conversationID, externalID string) (bool, error) {
	var message domain.Message
	err := r.db.Where("conversation_id = ? AND external_id = ?", conversationID, externalID).
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *messageRepository) Create(message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now().UTC()
	return r.db.Create(message).Error
}

func (r *messageRepository) LatestInbound(conversationID string) (*domain.Message, error) {
	var message domain.Message
	err := r.db.Where("conversation_id = ? AND direction = ?", conversationID, domain.DirectionInbound).
		Order("sent_at DESC").
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}
