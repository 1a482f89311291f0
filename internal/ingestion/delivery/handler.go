package delivery

import (
	"net/http"
	"time"

	"inboxpilot-backend/internal/ingestion/domain"
	"inboxpilot-backend/internal/ingestion/usecase"
	"inboxpilot-backend/internal/notification"
	"inboxpilot-backend/pkg/mailbox"

	"github.com/gin-gonic/gin"
)

// IngestionHandler exposes the import trigger, its progress read model, and
// the push webhook that providers deliver to.
type IngestionHandler struct {
	cursor        *usecase.CursorService
	notifications *notification.Service
}

func NewIngestionHandler(cursor *usecase.CursorService, notifications *notification.Service) *IngestionHandler {
	return &IngestionHandler{
		cursor:        cursor,
		notifications: notifications,
	}
}

type importRequest struct {
	WorkspaceID string `json:"workspace_id" binding:"required"`
	Folder      string `json:"folder"`
}

// TriggerImport runs one bounded ingestion slice synchronously and returns
// its summary. Continuations, if needed, are scheduled by the cursor itself.
// POST /api/pipeline/import
func (h *IngestionHandler) TriggerImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.cursor.Run(c.Request.Context(), req.WorkspaceID, req.Folder)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelImport flags the cursor; in-flight invocations stop at their next
// checkpoint and keep all progress.
// POST /api/pipeline/import/cancel
func (h *IngestionHandler) CancelImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.cursor.Cancel(req.WorkspaceID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "import cancelled"})
}

// ResumeImport clears the cancel flag. The next trigger picks up from the
// persisted checkpoint.
// POST /api/pipeline/import/resume
func (h *IngestionHandler) ResumeImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.cursor.Resume(req.WorkspaceID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "import resumed"})
}

// Progress returns the cursor-derived progress read model for polling UIs.
// GET /api/pipeline/import/progress?workspace_id=...
func (h *IngestionHandler) Progress(c *gin.Context) {
	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		workspaceID = c.GetString("workspaceID")
	}
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_id required"})
		return
	}

	progress, err := h.cursor.Progress(workspaceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, progress)
}

// ValidateWebhook answers the provider's endpoint validation handshake by
// echoing the validation token as plain text.
// GET /api/webhooks/mailbox?validationToken=...
func (h *IngestionHandler) ValidateWebhook(c *gin.Context) {
	token := c.Query("validationToken")
	if token == "" {
		token = c.Query("validation_token")
	}
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing validation token"})
		return
	}
	c.String(http.StatusOK, token)
}

type webhookMessage struct {
	ExternalID string    `json:"external_id" binding:"required"`
	ThreadID   string    `json:"thread_id"`
	Folder     string    `json:"folder"`
	From       string    `json:"from"`
	To         []string  `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sent_at"`
}

type webhookRequest struct {
	// History-style notification (Gmail push over HTTP).
	EmailAddress string `json:"email_address"`
	HistoryID    uint64 `json:"history_id"`

	// Direct message delivery.
	WorkspaceID string           `json:"workspace_id"`
	Messages    []webhookMessage `json:"messages"`
}

// ReceiveWebhook accepts push deliveries in either shape and feeds them into
// the same ingestion path the polling cursor uses, so ordering and duplicate
// delivery are absorbed downstream.
// POST /api/webhooks/mailbox
func (h *IngestionHandler) ReceiveWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.EmailAddress != "" {
		if h.notifications == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification handling not configured"})
			return
		}
		err := h.notifications.HandleNotification(c.Request.Context(), notification.MailboxNotification{
			EmailAddress: req.EmailAddress,
			HistoryID:    req.HistoryID,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "notification accepted"})
		return
	}

	if req.WorkspaceID == "" || len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_id and messages required"})
		return
	}

	msgs := make([]mailbox.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = mailbox.Message{
			ExternalID: m.ExternalID,
			ThreadID:   m.ThreadID,
			Folder:     m.Folder,
			From:       m.From,
			To:         m.To,
			Subject:    m.Subject,
			Body:       m.Body,
			SentAt:     m.SentAt,
		}
	}

	ingested, err := h.cursor.IngestMessages(c.Request.Context(), req.WorkspaceID, domain.FolderReceived, msgs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ingested": ingested, "received": len(req.Messages)})
}
