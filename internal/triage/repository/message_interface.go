package repository

import "inboxpilot-backend/internal/triage/domain"

type MessageRepository interface {
	// Exists reports whether a message with this external id already landed in
	// the conversation. Guards against at-least-once redelivery.
	Exists(conversationID, externalID string) (bool, error)
	Create(message *domain.Message) error
	// LatestInbound returns the newest customer message of a conversation, or
	// nil when the conversation has none.
	LatestInbound(conversationID string) (*domain.Message, error)
}
