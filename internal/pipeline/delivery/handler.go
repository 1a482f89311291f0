package delivery

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"inboxpilot-backend/internal/pipeline/repository"
	"inboxpilot-backend/internal/pipeline/usecase"
	queuedomain "inboxpilot-backend/internal/queue/domain"
	queuerepo "inboxpilot-backend/internal/queue/repository"

	"github.com/gin-gonic/gin"
)

// Drainer is the slice of the worker the handler needs.
type Drainer interface {
	Drain(ctx context.Context, queueName string) (*usecase.WorkerResult, error)
}

// PipelineHandler exposes the worker drain trigger and the operational read
// models: queue depths, incidents, and the audit trail.
type PipelineHandler struct {
	worker    Drainer
	queues    queuerepo.Store
	audits    repository.AuditRepository
	incidents repository.IncidentRepository
}

func NewPipelineHandler(worker Drainer, queues queuerepo.Store, audits repository.AuditRepository, incidents repository.IncidentRepository) *PipelineHandler {
	return &PipelineHandler{
		worker:    worker,
		queues:    queues,
		audits:    audits,
		incidents: incidents,
	}
}

// RunWorker drains one queue for up to the worker time budget.
// POST /api/pipeline/worker?queue=materialize
func (h *PipelineHandler) RunWorker(c *gin.Context) {
	queueName := c.DefaultQuery("queue", queuedomain.QueueMaterialize)

	result, err := h.worker.Drain(c.Request.Context(), queueName)
	if err != nil {
		status := http.StatusInternalServerError
		// The store wraps the sentinel with the offending queue name.
		if errors.Is(err, queuerepo.ErrQueueNotFound) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// QueueDepths reports the backlog of every registered queue.
// GET /api/pipeline/queues
func (h *PipelineHandler) QueueDepths(c *gin.Context) {
	names := []string{
		queuedomain.QueueMaterialize,
		queuedomain.QueueClassify,
		queuedomain.QueueImport,
		queuedomain.QueueDeadletter,
	}

	depths := make(map[string]int64, len(names))
	for _, name := range names {
		depth, err := h.queues.Depth(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		depths[name] = depth
	}
	c.JSON(http.StatusOK, gin.H{"queues": depths})
}

// PurgeDeadletter drops everything in the deadletter queue after an operator
// has finished inspecting it.
// POST /api/pipeline/deadletter/purge
func (h *PipelineHandler) PurgeDeadletter(c *gin.Context) {
	purged, err := h.queues.Purge(c.Request.Context(), queuedomain.QueueDeadletter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": purged})
}

// ListIncidents returns recent incidents for a workspace.
// GET /api/pipeline/incidents?workspace_id=...&limit=50
func (h *PipelineHandler) ListIncidents(c *gin.Context) {
	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		workspaceID = c.GetString("workspaceID")
	}
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_id required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	incidents, err := h.incidents.ListByWorkspace(workspaceID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents, "count": len(incidents)})
}

// ListAudit returns the recent job outcome trail for a workspace.
// GET /api/pipeline/audit?workspace_id=...&limit=100
func (h *PipelineHandler) ListAudit(c *gin.Context) {
	workspaceID := c.Query("workspace_id")
	if workspaceID == "" {
		workspaceID = c.GetString("workspaceID")
	}
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_id required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.audits.ListByWorkspace(workspaceID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
