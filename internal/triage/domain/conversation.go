package domain

import "time"

// Decision buckets. A flat enumeration, not sequential states.
const (
	BucketActNow      = "act_now"
	BucketQuickWin    = "quick_win"
	BucketAutoHandled = "auto_handled"
	BucketWait        = "wait"
)

// Derived triage attributes.
const (
	CognitiveLoadHigh = "high"
	CognitiveLoadLow  = "low"

	RiskRetention = "retention"
	RiskNone      = "none"
)

// Conversation statuses.
const (
	StatusOpen      = "open"
	StatusResolved  = "resolved"
	StatusClosed    = "closed"
	StatusEscalated = "escalated"
)

// Conversation is a thread grouped by the provider's thread identifier (or
// the message's own external id when threadless). Triage fields are owned by
// the classifier; materialization only creates and bumps counters.
type Conversation struct {
	ID          string `json:"id" gorm:"primaryKey"`
	WorkspaceID string `json:"workspace_id" gorm:"uniqueIndex:idx_workspace_thread;not null"`
	ThreadID    string `json:"thread_id" gorm:"uniqueIndex:idx_workspace_thread;not null"`
	CustomerID  string `json:"customer_id" gorm:"index"`
	Subject     string `json:"subject"`
	Status      string `json:"status" gorm:"default:open"`

	// Triage read model consumed by the UI.
	Category       string  `json:"category"`
	Priority       string  `json:"priority"`
	DecisionBucket string  `json:"decision_bucket" gorm:"index"`
	CognitiveLoad  string  `json:"cognitive_load"`
	RiskLevel      string  `json:"risk_level"`
	Justification  string  `json:"justification"`
	RequiresReply  *bool   `json:"requires_reply,omitempty"`
	IsEscalated    bool    `json:"is_escalated"`
	HasDraftReply  bool    `json:"has_draft_reply"`
	Confidence     float64 `json:"confidence"`
	Intent         string  `json:"intent"`
	Lane           string  `json:"lane"`
	Sentiment      string  `json:"sentiment"`

	MessageCount  int       `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
