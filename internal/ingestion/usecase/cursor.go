package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inboxpilot-backend/internal/ingestion/domain"
	"inboxpilot-backend/internal/ingestion/repository"
	pipeusecase "inboxpilot-backend/internal/pipeline/usecase"
	queuedomain "inboxpilot-backend/internal/queue/domain"
	queuerepo "inboxpilot-backend/internal/queue/repository"
	"inboxpilot-backend/pkg/logger"
	"inboxpilot-backend/pkg/mailbox"
)

// CredentialsFunc resolves provider credentials for a workspace.
type CredentialsFunc func(workspaceID string) (mailbox.Credentials, error)

// ClassifyTrigger fires one classification invocation for a workspace.
type ClassifyTrigger func(ctx context.Context, workspaceID string)

type CursorConfig struct {
	PageSize           int
	MaxPagesPerRun     int
	CutoffDays         int
	EarlyClassifyCount int
	ClassifyFanOut     int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	FetchTimeBudget    time.Duration
	PagePause          time.Duration
}

// CursorService walks a workspace mailbox folder by folder, in fixed
// sent-then-received order, checkpointing the per-folder page token after
// every page. Any invocation can die at any point; the next one resumes from
// the last checkpoint and the upsert keyed on external id absorbs the replay.
type CursorService struct {
	cursors     repository.ImportCursorRepository
	raws        repository.RawRecordRepository
	queues      queuerepo.Store
	provider    mailbox.Provider
	scheduler   pipeusecase.Scheduler
	credentials CredentialsFunc
	classify    ClassifyTrigger
	cfg         CursorConfig

	// Test seam: wall clock.
	now func() time.Time
}

func NewCursorService(
	cursors repository.ImportCursorRepository,
	raws repository.RawRecordRepository,
	queues queuerepo.Store,
	provider mailbox.Provider,
	scheduler pipeusecase.Scheduler,
	credentials CredentialsFunc,
	cfg CursorConfig,
) *CursorService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if cfg.MaxPagesPerRun <= 0 {
		cfg.MaxPagesPerRun = 40
	}
	if cfg.CutoffDays <= 0 {
		cfg.CutoffDays = 180
	}
	if cfg.EarlyClassifyCount <= 0 {
		cfg.EarlyClassifyCount = 1000
	}
	if cfg.ClassifyFanOut <= 0 {
		cfg.ClassifyFanOut = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Minute
	}
	if cfg.FetchTimeBudget <= 0 {
		cfg.FetchTimeBudget = 25 * time.Second
	}
	return &CursorService{
		cursors:     cursors,
		raws:        raws,
		queues:      queues,
		provider:    provider,
		scheduler:   scheduler,
		credentials: credentials,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetClassifyTrigger wires the classification stage in after construction,
// breaking the wiring cycle between ingestion and triage.
func (s *CursorService) SetClassifyTrigger(fn ClassifyTrigger) {
	s.classify = fn
}

// ImportResult is the invocation summary returned to the trigger caller.
// Success means the slice ran without a hard failure; throttled and
// budget-capped slices still succeed, they just resume later.
type ImportResult struct {
	Success       bool   `json:"success"`
	EmailsFetched int    `json:"emails_fetched"`
	HasMore       bool   `json:"has_more"`
	CurrentFolder string `json:"current_folder"`
	WillResume    bool   `json:"will_resume"`
	Phase         string `json:"phase"`
}

// Run executes one bounded ingestion slice for a workspace. resumeFolder is
// advisory; the persisted cursor is the source of truth for where to resume.
func (s *CursorService) Run(ctx context.Context, workspaceID, resumeFolder string) (*ImportResult, error) {
	cursor, err := s.cursors.GetOrCreate(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load import cursor: %w", err)
	}

	if cursor.Cancelled {
		return &ImportResult{Success: true, CurrentFolder: cursor.CurrentFolder, Phase: cursor.Phase}, nil
	}

	folder, active := cursor.ActiveFolder()
	if !active {
		return s.finishImport(cursor, &ImportResult{})
	}
	if resumeFolder != "" && resumeFolder != folder {
		logger.WithFields(map[string]interface{}{
			"workspace_id": workspaceID,
			"requested":    resumeFolder,
			"actual":       folder,
		}).Warn("resume folder diverged from cursor, following cursor")
	}

	creds, err := s.credentials(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}

	cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.CutoffDays)
	started := s.now()
	result := &ImportResult{Success: true, CurrentFolder: folder, Phase: domain.PhaseImporting}

	cursor.Phase = domain.PhaseImporting
	cursor.CurrentFolder = folder
	cursor.LastError = ""
	if err := s.cursors.Save(cursor); err != nil {
		return nil, fmt.Errorf("checkpoint cursor: %w", err)
	}

	for pages := 0; ; pages++ {
		if err := ctx.Err(); err != nil {
			s.scheduleContinuation(workspaceID, folder, 0)
			result.HasMore, result.WillResume = true, true
			return result, nil
		}
		if s.now().Sub(started) > s.cfg.FetchTimeBudget || pages >= s.cfg.MaxPagesPerRun {
			// Out of budget with work left: the checkpoint is already
			// persisted, hand the rest to a continuation.
			s.scheduleContinuation(workspaceID, folder, 0)
			result.HasMore, result.WillResume = true, true
			result.CurrentFolder = folder
			return result, nil
		}

		// Operator cancellation is honored between pages, not just between
		// invocations.
		if fresh, err := s.cursors.GetOrCreate(workspaceID); err == nil && fresh.Cancelled {
			result.Phase = fresh.Phase
			return result, nil
		}

		page, err := s.provider.FetchPage(ctx, creds, folder, cutoff, cursor.TokenFor(folder), s.cfg.PageSize)
		if mailbox.IsThrottled(err) {
			return s.backOff(workspaceID, cursor, folder, result, err)
		}
		if err != nil {
			cursor.Phase = domain.PhaseFailed
			cursor.LastError = err.Error()
			if saveErr := s.cursors.Save(cursor); saveErr != nil {
				logger.WithField("error", saveErr.Error()).Error("failure checkpoint lost")
			}
			return nil, fmt.Errorf("fetch %s page: %w", folder, err)
		}
		cursor.ThrottleAttempts = 0

		// The provider cutoff is advisory; re-filter client-side. A short
		// page after filtering means we walked past the cutoff boundary.
		kept := page.Messages[:0:0]
		for _, m := range page.Messages {
			if !m.SentAt.Before(cutoff) {
				kept = append(kept, m)
			}
		}

		ingested, err := s.IngestMessages(ctx, workspaceID, folder, kept)
		if err != nil {
			cursor.Phase = domain.PhaseFailed
			cursor.LastError = err.Error()
			if saveErr := s.cursors.Save(cursor); saveErr != nil {
				logger.WithField("error", saveErr.Error()).Error("failure checkpoint lost")
			}
			return nil, err
		}
		result.EmailsFetched += ingested

		prevTotal := cursor.TotalCount()
		cursor.AddCount(folder, len(kept))

		folderDone := page.NextPageToken == "" || len(kept) < len(page.Messages)
		if folderDone {
			cursor.MarkComplete(folder)
			cursor.SetToken(folder, "")
		} else {
			cursor.SetToken(folder, page.NextPageToken)
		}
		if err := s.cursors.Save(cursor); err != nil {
			return nil, fmt.Errorf("checkpoint cursor: %w", err)
		}

		// First crossing of the early threshold starts classification while
		// ingestion keeps running, so the UI shows buckets before the
		// backfill finishes.
		if prevTotal < s.cfg.EarlyClassifyCount && cursor.TotalCount() >= s.cfg.EarlyClassifyCount {
			s.triggerClassification(workspaceID, 1)
		}

		if folderDone {
			next, ok := cursor.ActiveFolder()
			if !ok {
				return s.finishImport(cursor, result)
			}
			folder = next
			cursor.CurrentFolder = folder
			result.CurrentFolder = folder
			continue
		}

		if s.cfg.PagePause > 0 {
			time.Sleep(s.cfg.PagePause)
		}
	}
}

// IngestMessages is the single convergence point for every message source:
// the polling cursor, the push webhook, and pub/sub notifications all land
// here, so arrival order and duplication never matter downstream.
func (s *CursorService) IngestMessages(ctx context.Context, workspaceID, folder string, msgs []mailbox.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	records := make([]domain.RawRecord, 0, len(msgs))
	externalIDs := make([]string, 0, len(msgs))
	for _, m := range msgs {
		threadID := m.ThreadID
		if threadID == "" {
			threadID = m.ExternalID
		}
		f := m.Folder
		if f == "" {
			f = folder
		}
		records = append(records, domain.RawRecord{
			WorkspaceID: workspaceID,
			ExternalID:  m.ExternalID,
			ThreadID:    threadID,
			Folder:      f,
			FromAddress: m.From,
			ToAddresses: strings.Join(m.To, ", "),
			Subject:     m.Subject,
			Body:        m.Body,
			SentAt:      m.SentAt,
		})
		externalIDs = append(externalIDs, m.ExternalID)
	}

	inserted, err := s.raws.UpsertBatch(records)
	if err != nil {
		return 0, fmt.Errorf("upsert raw records: %w", err)
	}

	// Enqueue off the table, not the insert result: a record left pending by
	// an earlier crash gets its job replaced here.
	pendingIDs, err := s.raws.ListPendingIDs(workspaceID, externalIDs)
	if err != nil {
		return inserted, fmt.Errorf("resolve pending records: %w", err)
	}
	if len(pendingIDs) > 0 {
		payloads := make([][]byte, len(pendingIDs))
		for i, id := range pendingIDs {
			payloads[i] = pipeusecase.EncodePayload(pipeusecase.JobPayload{
				JobType:     pipeusecase.JobMaterializeRecord,
				WorkspaceID: workspaceID,
				RawRecordID: id,
			})
		}
		if _, err := s.queues.EnqueueBatch(ctx, queuedomain.QueueMaterialize, payloads, 0); err != nil {
			return inserted, fmt.Errorf("enqueue materialize jobs: %w", err)
		}
	}
	return inserted, nil
}

// backOff checkpoints first, then schedules the resume. The order matters: a
// crash between the two costs only the delay, never pagination progress.
func (s *CursorService) backOff(workspaceID string, cursor *domain.ImportCursor, folder string, result *ImportResult, cause error) (*ImportResult, error) {
	cursor.ThrottleAttempts++
	cursor.Phase = domain.PhaseThrottled
	if err := s.cursors.Save(cursor); err != nil {
		return nil, fmt.Errorf("checkpoint before backoff: %w", err)
	}

	delay := ThrottleBackoff(cursor.ThrottleAttempts, s.cfg.BackoffBase, s.cfg.BackoffMax)
	var throttled *mailbox.ThrottledError
	if errors.As(cause, &throttled) && throttled.RetryAfter > delay {
		delay = throttled.RetryAfter
	}

	logger.WithFields(map[string]interface{}{
		"workspace_id": workspaceID,
		"folder":       folder,
		"attempt":      cursor.ThrottleAttempts,
		"delay":        delay.String(),
	}).Info("provider throttled, resuming after backoff")

	s.scheduleContinuation(workspaceID, folder, delay)
	result.HasMore = true
	result.WillResume = true
	result.Phase = domain.PhaseThrottled
	return result, nil
}

func (s *CursorService) scheduleContinuation(workspaceID, folder string, delay time.Duration) {
	if s.scheduler == nil {
		return
	}
	s.scheduler.Schedule("import:"+workspaceID, delay, func(ctx context.Context) {
		if _, err := s.Run(ctx, workspaceID, folder); err != nil {
			logger.WithFields(map[string]interface{}{
				"workspace_id": workspaceID,
				"error":        err.Error(),
			}).Error("import continuation failed")
		}
	})
}

// finishImport clears the resume state and fans classification out so the
// accumulated conversations get bucketed in parallel slices.
func (s *CursorService) finishImport(cursor *domain.ImportCursor, result *ImportResult) (*ImportResult, error) {
	cursor.SentPageToken = ""
	cursor.ReceivedPageToken = ""
	cursor.CurrentFolder = ""
	cursor.Phase = domain.PhaseClassifying
	if err := s.cursors.Save(cursor); err != nil {
		return nil, fmt.Errorf("finish import checkpoint: %w", err)
	}

	s.triggerClassification(cursor.WorkspaceID, s.cfg.ClassifyFanOut)

	result.Success = true
	result.HasMore = false
	result.WillResume = false
	result.CurrentFolder = ""
	result.Phase = domain.PhaseClassifying
	return result, nil
}

func (s *CursorService) triggerClassification(workspaceID string, fanOut int) {
	if s.classify == nil || s.scheduler == nil {
		return
	}
	for i := 0; i < fanOut; i++ {
		// Stagger the slices so they contend less on the unclassified scan.
		delay := time.Duration(i) * time.Second
		s.scheduler.Schedule(fmt.Sprintf("classify:%s:%d", workspaceID, i), delay, func(ctx context.Context) {
			s.classify(ctx, workspaceID)
		})
	}
}

// Cancel flags the cursor so in-flight and future invocations stop at their
// next checkpoint. Progress is kept; a later trigger resumes from it after
// Resume clears the flag.
func (s *CursorService) Cancel(workspaceID string) error {
	cursor, err := s.cursors.GetOrCreate(workspaceID)
	if err != nil {
		return err
	}
	cursor.Cancelled = true
	return s.cursors.Save(cursor)
}

// Resume clears the cancel flag without restarting anything.
func (s *CursorService) Resume(workspaceID string) error {
	cursor, err := s.cursors.GetOrCreate(workspaceID)
	if err != nil {
		return err
	}
	cursor.Cancelled = false
	return s.cursors.Save(cursor)
}

// MarkPhase is the hook the classification wiring uses to flip the cursor to
// complete once nothing unclassified remains.
func (s *CursorService) MarkPhase(workspaceID, phase string) error {
	cursor, err := s.cursors.GetOrCreate(workspaceID)
	if err != nil {
		return err
	}
	cursor.Phase = phase
	return s.cursors.Save(cursor)
}

// ImportProgress is the read model behind the progress polling endpoint.
type ImportProgress struct {
	WorkspaceID      string    `json:"workspace_id"`
	Phase            string    `json:"phase"`
	CurrentFolder    string    `json:"current_folder"`
	SentCount        int       `json:"sent_count"`
	ReceivedCount    int       `json:"received_count"`
	TotalCount       int       `json:"total_count"`
	Percentage       int       `json:"percentage"`
	ThrottleAttempts int       `json:"throttle_attempts"`
	LastError        string    `json:"last_error,omitempty"`
	Cancelled        bool      `json:"cancelled"`
	HeartbeatAt      time.Time `json:"heartbeat_at"`
}

// Progress summarizes cursor state for the UI. The percentage is a coarse
// phase-weighted estimate; folder sizes are unknown until exhausted.
func (s *CursorService) Progress(workspaceID string) (*ImportProgress, error) {
	cursor, err := s.cursors.GetOrCreate(workspaceID)
	if err != nil {
		return nil, err
	}

	pct := 5
	if cursor.SentComplete {
		pct = 50
	}
	if cursor.SentComplete && cursor.ReceivedComplete {
		pct = 90
	}
	switch cursor.Phase {
	case domain.PhaseClassifying:
		pct = 95
	case domain.PhaseComplete:
		pct = 100
	}

	return &ImportProgress{
		WorkspaceID:      cursor.WorkspaceID,
		Phase:            cursor.Phase,
		CurrentFolder:    cursor.CurrentFolder,
		SentCount:        cursor.SentCount,
		ReceivedCount:    cursor.ReceivedCount,
		TotalCount:       cursor.TotalCount(),
		Percentage:       pct,
		ThrottleAttempts: cursor.ThrottleAttempts,
		LastError:        cursor.LastError,
		Cancelled:        cursor.Cancelled,
		HeartbeatAt:      cursor.HeartbeatAt,
	}, nil
}
