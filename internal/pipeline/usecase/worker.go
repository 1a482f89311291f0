package usecase

import (
	"context"
	"encoding/json"
	"time"

	ingestrepo "inboxpilot-backend/internal/ingestion/repository"
	pipedomain "inboxpilot-backend/internal/pipeline/domain"
	piperepo "inboxpilot-backend/internal/pipeline/repository"
	queuedomain "inboxpilot-backend/internal/queue/domain"
	queuerepo "inboxpilot-backend/internal/queue/repository"
	"inboxpilot-backend/pkg/logger"
)

// Effect callbacks keep the worker decoupled from the triage package; main
// wires them to the materializer and classifier.
type (
	MaterializeFunc func(ctx context.Context, rawRecordID string) error
	ClassifyFunc    func(ctx context.Context, conversationID string) error
	ImportFunc      func(ctx context.Context, workspaceID, folder string) error
)

// Worker drains a fixed-size batch from one queue per invocation and
// classifies each outcome: processed, failed (implicit retry via lease
// expiry), discarded, or deadlettered. The lease is the only lock, so every
// effect it runs must be idempotent.
type Worker struct {
	queues    queuerepo.Store
	audits    piperepo.AuditRepository
	incidents piperepo.IncidentRepository
	runs      piperepo.PipelineRunRepository
	raws      ingestrepo.RawRecordRepository

	materialize MaterializeFunc
	classify    ClassifyFunc
	runImport   ImportFunc

	maxAttempts int
	timeBudget  time.Duration
	batchSize   int
	visibility  time.Duration

	// Test seam: wall clock.
	now func() time.Time
}

type WorkerConfig struct {
	MaxAttempts int
	TimeBudget  time.Duration
	BatchSize   int
	Visibility  time.Duration
}

func NewWorker(
	queues queuerepo.Store,
	audits piperepo.AuditRepository,
	incidents piperepo.IncidentRepository,
	runs piperepo.PipelineRunRepository,
	raws ingestrepo.RawRecordRepository,
	materialize MaterializeFunc,
	classify ClassifyFunc,
	runImport ImportFunc,
	cfg WorkerConfig,
) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 6
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = 50 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = 2 * time.Minute
	}
	return &Worker{
		queues:      queues,
		audits:      audits,
		incidents:   incidents,
		runs:        runs,
		raws:        raws,
		materialize: materialize,
		classify:    classify,
		runImport:   runImport,
		maxAttempts: cfg.MaxAttempts,
		timeBudget:  cfg.TimeBudget,
		batchSize:   cfg.BatchSize,
		visibility:  cfg.Visibility,
		now:         time.Now,
	}
}

// WorkerResult is the invocation summary returned to the caller.
type WorkerResult struct {
	OK          bool  `json:"ok"`
	Processed   int   `json:"processed"`
	FetchedJobs int   `json:"fetched_jobs"`
	ElapsedMS   int64 `json:"elapsed_ms"`
}

// Drain pulls batches from queueName until the queue is empty or the time
// budget is spent, leaving the remainder for the next invocation.
func (w *Worker) Drain(ctx context.Context, queueName string) (*WorkerResult, error) {
	started := w.now()
	result := &WorkerResult{OK: true}
	failed := 0

	run := &pipedomain.PipelineRun{Stage: "worker:" + queueName, StartedAt: started}
	if w.runs != nil {
		if err := w.runs.Create(run); err != nil {
			logger.WithField("error", err.Error()).Warn("pipeline run create failed")
		}
	}

	for {
		if w.now().Sub(started) > w.timeBudget {
			break
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		jobs, err := w.queues.Dequeue(ctx, queueName, w.visibility, w.batchSize)
		if err != nil {
			// Queue configuration errors are fatal for this invocation;
			// nothing below the worker retries them.
			return nil, err
		}
		if len(jobs) == 0 {
			break
		}
		result.FetchedJobs += len(jobs)

		for i := range jobs {
			if w.now().Sub(started) > w.timeBudget {
				break
			}
			if w.processJob(ctx, queueName, &jobs[i]) {
				result.Processed++
			} else {
				failed++
			}
		}
	}

	result.ElapsedMS = w.now().Sub(started).Milliseconds()
	if w.runs != nil {
		if err := w.runs.Finish(run.ID, result.FetchedJobs, result.Processed, failed); err != nil {
			logger.WithField("error", err.Error()).Warn("pipeline run finish failed")
		}
	}
	return result, nil
}

// processJob returns true when the job reached a successful terminal state.
func (w *Worker) processJob(ctx context.Context, queueName string, job *queuedomain.QueueJob) bool {
	payload, err := DecodePayload(job.Payload)
	if err == nil {
		err = payload.Validate()
	}
	if err != nil {
		// Structural failure: producer bug, never retried.
		w.discard(ctx, queueName, job, payload, err)
		return false
	}

	effectErr := w.runEffect(ctx, payload)
	if effectErr == nil {
		if err := w.queues.Delete(ctx, queueName, job.ID); err != nil {
			logger.WithFields(map[string]interface{}{
				"queue":  queueName,
				"job_id": job.ID,
				"error":  err.Error(),
			}).Warn("delete after success failed, lease expiry will redeliver")
		}
		w.audit(payload.WorkspaceID, queueName, job.ID, pipedomain.OutcomeProcessed, job.ReadCount, "")
		return true
	}

	if job.ReadCount < w.maxAttempts {
		// Leave the job leased; the expiring lease is the retry.
		w.audit(payload.WorkspaceID, queueName, job.ID, pipedomain.OutcomeFailed, job.ReadCount, effectErr.Error())
		return false
	}

	w.deadletter(ctx, queueName, job, payload, effectErr)
	return false
}

func (w *Worker) runEffect(ctx context.Context, payload *JobPayload) error {
	switch payload.JobType {
	case JobMaterializeRecord:
		return w.materialize(ctx, payload.RawRecordID)
	case JobClassifyConversation:
		return w.classify(ctx, payload.ConversationID)
	case JobRunImport:
		return w.runImport(ctx, payload.WorkspaceID, payload.Folder)
	}
	// Unreachable: Validate rejects unknown tags.
	return nil
}

func (w *Worker) discard(ctx context.Context, queueName string, job *queuedomain.QueueJob, payload *JobPayload, cause error) {
	if err := w.queues.Delete(ctx, queueName, job.ID); err != nil {
		logger.WithFields(map[string]interface{}{
			"queue":  queueName,
			"job_id": job.ID,
			"error":  err.Error(),
		}).Warn("discard delete failed")
	}
	workspaceID := ""
	if payload != nil {
		workspaceID = payload.WorkspaceID
	}
	w.audit(workspaceID, queueName, job.ID, pipedomain.OutcomeDiscarded, job.ReadCount, cause.Error())
}

// deadletter moves an exhausted job to the deadletter queue with full
// failure context, archives the origin row into the done partition, records
// an incident, and marks the owning record failed unless its effect actually
// landed before a crash.
func (w *Worker) deadletter(ctx context.Context, queueName string, job *queuedomain.QueueJob, payload *JobPayload, cause error) {
	envelope, _ := json.Marshal(deadletterEnvelope{
		OriginQueue: queueName,
		JobID:       job.ID,
		Attempts:    job.ReadCount,
		Error:       cause.Error(),
		Payload:     json.RawMessage(job.Payload),
	})

	if _, err := w.queues.Enqueue(ctx, queuedomain.QueueDeadletter, envelope, 0); err != nil {
		logger.WithFields(map[string]interface{}{
			"queue":  queueName,
			"job_id": job.ID,
			"error":  err.Error(),
		}).Error("deadletter enqueue failed, job stays for redelivery")
		return
	}
	if err := w.queues.Archive(ctx, queueName, job.ID, envelope); err != nil {
		logger.WithField("error", err.Error()).Warn("deadletter origin archive failed")
	}

	if w.incidents != nil {
		if err := w.incidents.Append(&pipedomain.Incident{
			WorkspaceID: payload.WorkspaceID,
			Severity:    pipedomain.SeverityError,
			Source:      "worker:" + queueName,
			Message:     "job exhausted retry budget: " + cause.Error(),
			Context:     envelope,
		}); err != nil {
			logger.WithField("error", err.Error()).Warn("incident append failed")
		}
	}
	w.audit(payload.WorkspaceID, queueName, job.ID, pipedomain.OutcomeDeadlettered, job.ReadCount, cause.Error())

	if payload.JobType == JobMaterializeRecord && w.raws != nil {
		if err := w.raws.MarkFailedUnlessMaterialized(payload.RawRecordID, cause.Error()); err != nil {
			logger.WithField("error", err.Error()).Warn("raw record failure mark failed")
		}
	}
}

func (w *Worker) audit(workspaceID, queueName, jobID, outcome string, attempts int, detail string) {
	if w.audits == nil {
		return
	}
	if err := w.audits.Append(&pipedomain.AuditEntry{
		WorkspaceID: workspaceID,
		Queue:       queueName,
		JobID:       jobID,
		Outcome:     outcome,
		Attempts:    attempts,
		Detail:      detail,
	}); err != nil {
		logger.WithField("error", err.Error()).Warn("audit append failed")
	}
}
