package domain

import "time"

// Message directions and actors.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	ActorCustomer = "customer"
	ActorOwner    = "owner"
)

// Message is one directional utterance within a conversation. Immutable once
// created; deduplicated on (conversation, external id).
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	WorkspaceID    string    `json:"workspace_id" gorm:"index"`
	ConversationID string    `json:"conversation_id" gorm:"uniqueIndex:idx_conversation_external;not null"`
	ExternalID     string    `json:"external_id" gorm:"uniqueIndex:idx_conversation_external;not null"`
	Direction      string    `json:"direction"`
	ActorType      string    `json:"actor_type"`
	FromAddress    string    `json:"from_address"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
	CreatedAt      time.Time `json:"created_at"`
}
