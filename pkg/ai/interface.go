package ai

import (
	"context"
)

// ConversationContext is the bounded slice of a conversation sent to the
// model: id for correlation, subject and a body snippet, and the current
// category if one is known.
type ConversationContext struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	Snippet  string `json:"snippet"`
	Category string `json:"category,omitempty"`
}

// TriageResult is the assisted classification for one conversation.
type TriageResult struct {
	ID            string  `json:"id"`
	Intent        string  `json:"intent"`
	Priority      string  `json:"priority"`
	Lane          string  `json:"lane"`
	Sentiment     string  `json:"sentiment"`
	RequiresReply *bool   `json:"requires_reply,omitempty"`
	Confidence    float64 `json:"confidence"`
}

// TriageService is the interface for AI-assisted conversation triage.
// Implement this interface to add new AI providers (Gemini, Ollama, etc.)
type TriageService interface {
	ClassifyConversations(ctx context.Context, batch []ConversationContext) ([]TriageResult, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
