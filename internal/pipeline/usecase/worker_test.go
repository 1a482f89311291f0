package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	ingestdomain "inboxpilot-backend/internal/ingestion/domain"
	pipedomain "inboxpilot-backend/internal/pipeline/domain"
	queuedomain "inboxpilot-backend/internal/queue/domain"
	queuerepo "inboxpilot-backend/internal/queue/repository"
)

// fakeQueueStore is an in-memory Store with real lease semantics: dequeued
// jobs become invisible until their lease is expired by the test.
type fakeQueueStore struct {
	registered map[string]bool
	jobs       map[string][]*queuedomain.QueueJob
	archived   []queuedomain.ArchivedJob
	nextID     int
}

func newFakeQueueStore(queues ...string) *fakeQueueStore {
	f := &fakeQueueStore{
		registered: make(map[string]bool),
		jobs:       make(map[string][]*queuedomain.QueueJob),
	}
	for _, q := range queues {
		f.registered[q] = true
	}
	return f
}

func (f *fakeQueueStore) Enqueue(ctx context.Context, queue string, payload []byte, delay time.Duration) (string, error) {
	if !f.registered[queue] {
		return "", queuerepo.ErrQueueNotFound
	}
	f.nextID++
	job := &queuedomain.QueueJob{
		ID:        fmt.Sprintf("job-%d", f.nextID),
		Queue:     queue,
		Payload:   payload,
		VisibleAt: time.Now().Add(delay),
	}
	f.jobs[queue] = append(f.jobs[queue], job)
	return job.ID, nil
}

func (f *fakeQueueStore) EnqueueBatch(ctx context.Context, queue string, payloads [][]byte, delay time.Duration) ([]string, error) {
	var ids []string
	for _, p := range payloads {
		id, err := f.Enqueue(ctx, queue, p, delay)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeQueueStore) Dequeue(ctx context.Context, queue string, visibility time.Duration, maxN int) ([]queuedomain.QueueJob, error) {
	if !f.registered[queue] {
		return nil, queuerepo.ErrQueueNotFound
	}
	now := time.Now()
	var leased []queuedomain.QueueJob
	for _, job := range f.jobs[queue] {
		if len(leased) == maxN {
			break
		}
		if job.VisibleAt.After(now) {
			continue
		}
		job.VisibleAt = now.Add(visibility)
		job.ReadCount++
		leased = append(leased, *job)
	}
	return leased, nil
}

func (f *fakeQueueStore) Delete(ctx context.Context, queue, jobID string) error {
	jobs := f.jobs[queue]
	for i, job := range jobs {
		if job.ID == jobID {
			f.jobs[queue] = append(jobs[:i], jobs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeQueueStore) Archive(ctx context.Context, queue, jobID string, contextPayload []byte) error {
	for _, job := range f.jobs[queue] {
		if job.ID != jobID {
			continue
		}
		f.archived = append(f.archived, queuedomain.ArchivedJob{
			ID:          job.ID,
			OriginQueue: job.Queue,
			Payload:     job.Payload,
			ReadCount:   job.ReadCount,
			Context:     contextPayload,
		})
		return f.Delete(ctx, queue, jobID)
	}
	return fmt.Errorf("archive: job %s not found in %s", jobID, queue)
}

func (f *fakeQueueStore) Purge(ctx context.Context, queue string) (int64, error) {
	n := int64(len(f.jobs[queue]))
	f.jobs[queue] = nil
	return n, nil
}

func (f *fakeQueueStore) Depth(ctx context.Context, queue string) (int64, error) {
	return int64(len(f.jobs[queue])), nil
}

// expireLeases makes every leased job in the queue visible again.
func (f *fakeQueueStore) expireLeases(queue string) {
	for _, job := range f.jobs[queue] {
		job.VisibleAt = time.Now().Add(-time.Second)
	}
}

type fakeAudits struct {
	entries []pipedomain.AuditEntry
}

func (f *fakeAudits) Append(entry *pipedomain.AuditEntry) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAudits) ListByWorkspace(workspaceID string, limit int) ([]pipedomain.AuditEntry, error) {
	return f.entries, nil
}

func (f *fakeAudits) countOutcome(outcome string) int {
	n := 0
	for _, e := range f.entries {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}

type fakeIncidents struct {
	incidents []pipedomain.Incident
}

func (f *fakeIncidents) Append(incident *pipedomain.Incident) error {
	f.incidents = append(f.incidents, *incident)
	return nil
}

func (f *fakeIncidents) ListByWorkspace(workspaceID string, limit int) ([]pipedomain.Incident, error) {
	return f.incidents, nil
}

type fakeRuns struct {
	created  int
	finished int
}

func (f *fakeRuns) Create(run *pipedomain.PipelineRun) error {
	run.ID = fmt.Sprintf("run-%d", f.created)
	f.created++
	return nil
}

func (f *fakeRuns) Finish(runID string, fetched, processed, failed int) error {
	f.finished++
	return nil
}

type fakeRawMarker struct {
	records map[string]*ingestdomain.RawRecord
}

func newFakeRawMarker(records ...*ingestdomain.RawRecord) *fakeRawMarker {
	f := &fakeRawMarker{records: make(map[string]*ingestdomain.RawRecord)}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

func (f *fakeRawMarker) UpsertBatch(records []ingestdomain.RawRecord) (int, error) { return 0, nil }

func (f *fakeRawMarker) GetByID(id string) (*ingestdomain.RawRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return r, nil
}

func (f *fakeRawMarker) ListPendingIDs(workspaceID string, externalIDs []string) ([]string, error) {
	return nil, nil
}

func (f *fakeRawMarker) MarkStatus(id, status, lastError string) error { return nil }

func (f *fakeRawMarker) MarkFailedUnlessMaterialized(id, lastError string) error {
	r, ok := f.records[id]
	if !ok {
		return nil
	}
	if r.Status == ingestdomain.RawStatusMaterialized || r.Status == ingestdomain.RawStatusExcluded {
		return nil
	}
	r.Status = ingestdomain.RawStatusFailed
	r.LastError = lastError
	return nil
}

func (f *fakeRawMarker) CountByWorkspace(workspaceID string) (int64, error) { return 0, nil }

type workerFixture struct {
	queues    *fakeQueueStore
	audits    *fakeAudits
	incidents *fakeIncidents
	runs      *fakeRuns
	raws      *fakeRawMarker
	worker    *Worker
}

func newWorkerFixture(t *testing.T, materialize MaterializeFunc, classify ClassifyFunc, cfg WorkerConfig) *workerFixture {
	t.Helper()
	if materialize == nil {
		materialize = func(ctx context.Context, rawRecordID string) error { return nil }
	}
	if classify == nil {
		classify = func(ctx context.Context, conversationID string) error { return nil }
	}
	f := &workerFixture{
		queues: newFakeQueueStore(
			queuedomain.QueueMaterialize,
			queuedomain.QueueClassify,
			queuedomain.QueueImport,
			queuedomain.QueueDeadletter,
		),
		audits:    &fakeAudits{},
		incidents: &fakeIncidents{},
		runs:      &fakeRuns{},
		raws:      newFakeRawMarker(&ingestdomain.RawRecord{ID: "raw1", Status: ingestdomain.RawStatusPending}),
	}
	runImport := func(ctx context.Context, workspaceID, folder string) error { return nil }
	f.worker = NewWorker(f.queues, f.audits, f.incidents, f.runs, f.raws, materialize, classify, runImport, cfg)
	return f
}

func enqueueMaterialize(t *testing.T, q *fakeQueueStore, rawID string) {
	t.Helper()
	payload := EncodePayload(JobPayload{
		JobType:     JobMaterializeRecord,
		WorkspaceID: "ws1",
		RawRecordID: rawID,
	})
	if _, err := q.Enqueue(context.Background(), queuedomain.QueueMaterialize, payload, 0); err != nil {
		t.Fatal(err)
	}
}

func TestDrainProcessesJobs(t *testing.T) {
	var processed []string
	fx := newWorkerFixture(t, func(ctx context.Context, rawRecordID string) error {
		processed = append(processed, rawRecordID)
		return nil
	}, nil, WorkerConfig{})

	enqueueMaterialize(t, fx.queues, "raw1")
	enqueueMaterialize(t, fx.queues, "raw2")

	result, err := fx.worker.Drain(context.Background(), queuedomain.QueueMaterialize)
	if err != nil {
		t.Fatal(err)
	}

	if result.Processed != 2 || result.FetchedJobs != 2 {
		t.Errorf("result = %+v, want 2 processed, 2 fetched", result)
	}
	if len(processed) != 2 {
		t.Errorf("effects ran %d times, want 2", len(processed))
	}
	if depth, _ := fx.queues.Depth(context.Background(), queuedomain.QueueMaterialize); depth != 0 {
		t.Errorf("queue depth after drain = %d, want 0", depth)
	}
	if got := fx.audits.countOutcome(pipedomain.OutcomeProcessed); got != 2 {
		t.Errorf("processed audits = %d, want 2", got)
	}
	if fx.runs.created != 1 || fx.runs.finished != 1 {
		t.Errorf("pipeline runs created=%d finished=%d, want 1/1", fx.runs.created, fx.runs.finished)
	}
}

func TestDrainDiscardsMalformed(t *testing.T) {
	effectRan := false
	fx := newWorkerFixture(t, func(ctx context.Context, rawRecordID string) error {
		effectRan = true
		return nil
	}, nil, WorkerConfig{})

	ctx := context.Background()
	// Unparseable, unknown type, and missing correlation id.
	fx.queues.Enqueue(ctx, queuedomain.QueueMaterialize, []byte("{not json"), 0)
	fx.queues.Enqueue(ctx, queuedomain.QueueMaterialize, EncodePayload(JobPayload{JobType: "mystery", WorkspaceID: "ws1"}), 0)
	fx.queues.Enqueue(ctx, queuedomain.QueueMaterialize, EncodePayload(JobPayload{JobType: JobMaterializeRecord, WorkspaceID: "ws1"}), 0)

	result, err := fx.worker.Drain(ctx, queuedomain.QueueMaterialize)
	if err != nil {
		t.Fatal(err)
	}

	if result.Processed != 0 {
		t.Errorf("processed = %d, want 0", result.Processed)
	}
	if effectRan {
		t.Error("malformed jobs must never reach an effect")
	}
	if depth, _ := fx.queues.Depth(ctx, queuedomain.QueueMaterialize); depth != 0 {
		t.Errorf("discarded jobs must be deleted, depth = %d", depth)
	}
	if got := fx.audits.countOutcome(pipedomain.OutcomeDiscarded); got != 3 {
		t.Errorf("discarded audits = %d, want 3", got)
	}
	if len(fx.incidents.incidents) != 0 {
		t.Errorf("discards must not raise incidents, got %d", len(fx.incidents.incidents))
	}
}

func TestDrainRetriesThenDeadletters(t *testing.T) {
	fx := newWorkerFixture(t, func(ctx context.Context, rawRecordID string) error {
		return errors.New("downstream unavailable")
	}, nil, WorkerConfig{MaxAttempts: 3})

	ctx := context.Background()
	enqueueMaterialize(t, fx.queues, "raw1")

	// Attempts 1 and 2 fail and stay leased for redelivery.
	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := fx.worker.Drain(ctx, queuedomain.QueueMaterialize); err != nil {
			t.Fatal(err)
		}
		if depth, _ := fx.queues.Depth(ctx, queuedomain.QueueMaterialize); depth != 1 {
			t.Fatalf("attempt %d: job must remain queued, depth = %d", attempt, depth)
		}
		fx.queues.expireLeases(queuedomain.QueueMaterialize)
	}
	if got := fx.audits.countOutcome(pipedomain.OutcomeFailed); got != 2 {
		t.Fatalf("failed audits = %d, want 2", got)
	}

	// Attempt 3 hits the cap and deadletters.
	if _, err := fx.worker.Drain(ctx, queuedomain.QueueMaterialize); err != nil {
		t.Fatal(err)
	}

	if depth, _ := fx.queues.Depth(ctx, queuedomain.QueueMaterialize); depth != 0 {
		t.Errorf("origin queue depth = %d, want 0", depth)
	}
	if depth, _ := fx.queues.Depth(ctx, queuedomain.QueueDeadletter); depth != 1 {
		t.Errorf("deadletter depth = %d, want exactly 1", depth)
	}
	// The origin job lands in the done partition with its failure context.
	if len(fx.queues.archived) != 1 {
		t.Fatalf("archived jobs = %d, want exactly 1", len(fx.queues.archived))
	}
	archived := fx.queues.archived[0]
	if archived.OriginQueue != queuedomain.QueueMaterialize {
		t.Errorf("archived origin = %q, want materialize", archived.OriginQueue)
	}
	if archived.ReadCount != 3 {
		t.Errorf("archived read count = %d, want 3", archived.ReadCount)
	}
	if !strings.Contains(string(archived.Context), "downstream unavailable") {
		t.Errorf("archived context = %s, want the failure cause", archived.Context)
	}
	if len(fx.incidents.incidents) != 1 {
		t.Errorf("incidents = %d, want exactly 1", len(fx.incidents.incidents))
	}
	if got := fx.audits.countOutcome(pipedomain.OutcomeDeadlettered); got != 1 {
		t.Errorf("deadlettered audits = %d, want 1", got)
	}
	if got := fx.raws.records["raw1"].Status; got != ingestdomain.RawStatusFailed {
		t.Errorf("raw status = %q, want failed", got)
	}

	// Nothing left: a further drain is a no-op.
	fx.queues.expireLeases(queuedomain.QueueMaterialize)
	result, err := fx.worker.Drain(ctx, queuedomain.QueueMaterialize)
	if err != nil {
		t.Fatal(err)
	}
	if result.FetchedJobs != 0 {
		t.Errorf("post-deadletter drain fetched %d jobs, want 0", result.FetchedJobs)
	}
	if len(fx.incidents.incidents) != 1 {
		t.Errorf("incident count changed after deadletter, got %d", len(fx.incidents.incidents))
	}
}

func TestDeadletterSparesMaterializedRecord(t *testing.T) {
	fx := newWorkerFixture(t, func(ctx context.Context, rawRecordID string) error {
		return errors.New("crash after effect landed")
	}, nil, WorkerConfig{MaxAttempts: 1})
	fx.raws.records["raw1"].Status = ingestdomain.RawStatusMaterialized

	ctx := context.Background()
	enqueueMaterialize(t, fx.queues, "raw1")

	if _, err := fx.worker.Drain(ctx, queuedomain.QueueMaterialize); err != nil {
		t.Fatal(err)
	}

	if got := fx.raws.records["raw1"].Status; got != ingestdomain.RawStatusMaterialized {
		t.Errorf("raw status = %q, materialized record must keep its status", got)
	}
}

func TestDrainRoutesJobTypes(t *testing.T) {
	var classified, imported []string
	fx := newWorkerFixture(t, nil, func(ctx context.Context, conversationID string) error {
		classified = append(classified, conversationID)
		return nil
	}, WorkerConfig{})
	fx.worker.runImport = func(ctx context.Context, workspaceID, folder string) error {
		imported = append(imported, workspaceID+"/"+folder)
		return nil
	}

	ctx := context.Background()
	fx.queues.Enqueue(ctx, queuedomain.QueueClassify, EncodePayload(JobPayload{
		JobType: JobClassifyConversation, WorkspaceID: "ws1", ConversationID: "c1",
	}), 0)
	fx.queues.Enqueue(ctx, queuedomain.QueueImport, EncodePayload(JobPayload{
		JobType: JobRunImport, WorkspaceID: "ws1", Folder: "sent",
	}), 0)

	if _, err := fx.worker.Drain(ctx, queuedomain.QueueClassify); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.worker.Drain(ctx, queuedomain.QueueImport); err != nil {
		t.Fatal(err)
	}

	if len(classified) != 1 || classified[0] != "c1" {
		t.Errorf("classified = %v, want [c1]", classified)
	}
	if len(imported) != 1 || imported[0] != "ws1/sent" {
		t.Errorf("imported = %v, want [ws1/sent]", imported)
	}
}

func TestDrainUnknownQueue(t *testing.T) {
	fx := newWorkerFixture(t, nil, nil, WorkerConfig{})

	_, err := fx.worker.Drain(context.Background(), "no-such-queue")
	if !errors.Is(err, queuerepo.ErrQueueNotFound) {
		t.Errorf("err = %v, want ErrQueueNotFound", err)
	}
}
