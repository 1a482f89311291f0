package delivery

import (
	"net/http"
	"strconv"

	"inboxpilot-backend/internal/triage/repository"
	"inboxpilot-backend/internal/triage/usecase"

	"github.com/gin-gonic/gin"
)

// TriageHandler exposes the classification and backfill triggers plus the
// bucketed conversation read models.
type TriageHandler struct {
	classifier    *usecase.ClassificationService
	conversations repository.ConversationRepository
}

func NewTriageHandler(classifier *usecase.ClassificationService, conversations repository.ConversationRepository) *TriageHandler {
	return &TriageHandler{
		classifier:    classifier,
		conversations: conversations,
	}
}

type classifyRequest struct {
	WorkspaceID string `json:"workspace_id" binding:"required"`
	Limit       int    `json:"limit"`
}

// Classify buckets one batch of unclassified conversations.
// POST /api/pipeline/classify
func (h *TriageHandler) Classify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}

	result, err := h.classifier.ClassifyPending(c.Request.Context(), req.WorkspaceID, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type backfillRequest struct {
	WorkspaceID string `json:"workspace_id" binding:"required"`
	Bucket      string `json:"bucket"`
	BatchSize   int    `json:"batch_size"`
	DryRun      bool   `json:"dry_run"`
}

// Backfill re-runs the current cascade over already-classified conversations.
// POST /api/pipeline/backfill
func (h *TriageHandler) Backfill(c *gin.Context) {
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.classifier.Backfill(c.Request.Context(), req.WorkspaceID, req.Bucket, req.BatchSize, req.DryRun)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListConversations pages through classified conversations, optionally
// filtered to one bucket.
// GET /api/conversations?workspace_id=...&bucket=act_now&limit=50&offset=0
func (h *TriageHandler) ListConversations(c *gin.Context) {
	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		workspaceID = c.GetString("workspaceID")
	}
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_id required"})
		return
	}

	bucket := c.Query("bucket")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	convs, err := h.conversations.ListClassified(workspaceID, bucket, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs, "count": len(convs)})
}

// BucketCounts returns conversation counts per decision bucket, the numbers
// behind the dashboard tiles.
// GET /api/conversations/buckets?workspace_id=...
func (h *TriageHandler) BucketCounts(c *gin.Context) {
	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		workspaceID = c.GetString("workspaceID")
	}
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_id required"})
		return
	}

	counts, err := h.conversations.CountByBucket(workspaceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": counts})
}
