package domain

import "time"

// Import phases surfaced to the UI's progress polling.
const (
	PhaseImporting   = "importing"
	PhaseThrottled   = "throttled"
	PhaseClassifying = "classifying"
	PhaseComplete    = "complete"
	PhaseFailed      = "failed"
)

// ImportCursor is the single per-workspace resume point for ingestion. Every
// invocation loads it, and checkpoints it before acting on a throttle so a
// crash mid-backoff never loses pagination progress.
type ImportCursor struct {
	WorkspaceID       string    `json:"workspace_id" gorm:"primaryKey"`
	CurrentFolder     string    `json:"current_folder"`
	SentPageToken     string    `json:"sent_page_token"`
	ReceivedPageToken string    `json:"received_page_token"`
	SentCount         int       `json:"sent_count"`
	ReceivedCount     int       `json:"received_count"`
	SentComplete      bool      `json:"sent_complete"`
	ReceivedComplete  bool      `json:"received_complete"`
	ThrottleAttempts  int       `json:"throttle_attempts"`
	Phase             string    `json:"phase"`
	LastError         string    `json:"last_error"`
	Cancelled         bool      `json:"cancelled"`
	HeartbeatAt       time.Time `json:"heartbeat_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TokenFor returns the saved pagination token for a folder.
func (c *ImportCursor) TokenFor(folder string) string {
	if folder == FolderSent {
		return c.SentPageToken
	}
	return c.ReceivedPageToken
}

// SetToken stores the pagination token for a folder.
func (c *ImportCursor) SetToken(folder, token string) {
	if folder == FolderSent {
		c.SentPageToken = token
	} else {
		c.ReceivedPageToken = token
	}
}

// AddCount advances the running counter for a folder.
func (c *ImportCursor) AddCount(folder string, n int) {
	if folder == FolderSent {
		c.SentCount += n
	} else {
		c.ReceivedCount += n
	}
}

// MarkComplete flags a folder as exhausted or cut off.
func (c *ImportCursor) MarkComplete(folder string) {
	if folder == FolderSent {
		c.SentComplete = true
	} else {
		c.ReceivedComplete = true
	}
}

// ActiveFolder resolves the first folder not yet complete, honoring the
// fixed sent-before-received priority order.
func (c *ImportCursor) ActiveFolder() (string, bool) {
	if !c.SentComplete {
		return FolderSent, true
	}
	if !c.ReceivedComplete {
		return FolderReceived, true
	}
	return "", false
}

// TotalCount is the number of records ingested so far across folders.
func (c *ImportCursor) TotalCount() int {
	return c.SentCount + c.ReceivedCount
}
