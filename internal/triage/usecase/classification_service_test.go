package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"inboxpilot-backend/internal/triage/domain"
	"inboxpilot-backend/pkg/ai"
)

type fakeTriageModel struct {
	results []ai.TriageResult
	err     error
	calls   int
	batches [][]ai.ConversationContext
}

func (f *fakeTriageModel) ClassifyConversations(ctx context.Context, batch []ai.ConversationContext) ([]ai.TriageResult, error) {
	f.calls++
	f.batches = append(f.batches, batch)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestClassifyPendingCascadeOnly(t *testing.T) {
	conversations := newFakeConversations(
		&domain.Conversation{ID: "c1", WorkspaceID: "ws1", ThreadID: "t1", Subject: "I demand a refund", Status: domain.StatusOpen},
		&domain.Conversation{ID: "c2", WorkspaceID: "ws1", ThreadID: "t2", Subject: "March update", Category: "newsletter", Status: domain.StatusOpen},
	)
	s := NewClassificationService(conversations, newFakeMessages(), DefaultRuleSet(), nil)

	result, err := s.ClassifyPending(context.Background(), "ws1", 100)
	if err != nil {
		t.Fatal(err)
	}

	if result.Processed != 2 {
		t.Errorf("processed = %d, want 2", result.Processed)
	}
	if result.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", result.Remaining)
	}
	if got := conversations.byID["c1"].DecisionBucket; got != domain.BucketActNow {
		t.Errorf("c1 bucket = %q, want act_now", got)
	}
	if got := conversations.byID["c2"].DecisionBucket; got != domain.BucketAutoHandled {
		t.Errorf("c2 bucket = %q, want auto_handled", got)
	}
}

func TestClassifyPendingAssisted(t *testing.T) {
	conversations := newFakeConversations(
		// No cascade signals at all: goes to the model.
		&domain.Conversation{ID: "c1", WorkspaceID: "ws1", ThreadID: "t1", Subject: "Hello again", Status: domain.StatusOpen},
	)
	messages := newFakeMessages()
	messages.Create(&domain.Message{
		ConversationID: "c1", ExternalID: "m1", Direction: domain.DirectionInbound,
		Body: "An older question.", SentAt: time.Now().Add(-2 * time.Hour),
	})
	messages.Create(&domain.Message{
		ConversationID: "c1", ExternalID: "m2", Direction: domain.DirectionInbound,
		Body: "Just checking in on my earlier question.", SentAt: time.Now().Add(-time.Hour),
	})
	model := &fakeTriageModel{results: []ai.TriageResult{
		{ID: "c1", Lane: domain.BucketWait, Intent: "follow_up", Sentiment: "neutral", Confidence: 0.8},
	}}
	s := NewClassificationService(conversations, messages, DefaultRuleSet(), model)

	result, err := s.ClassifyPending(context.Background(), "ws1", 100)
	if err != nil {
		t.Fatal(err)
	}

	if model.calls != 1 {
		t.Fatalf("model calls = %d, want 1", model.calls)
	}
	if result.Assisted != 1 {
		t.Errorf("assisted = %d, want 1", result.Assisted)
	}
	// The wait bucket is only reachable through the assisted path.
	if got := conversations.byID["c1"].DecisionBucket; got != domain.BucketWait {
		t.Errorf("bucket = %q, want wait", got)
	}
	// The model sees the newest customer message, not just the subject.
	if got := model.batches[0][0].Snippet; got != "Just checking in on my earlier question." {
		t.Errorf("snippet = %q, want the latest inbound body", got)
	}
}

func TestSnippetTruncatesLongBodies(t *testing.T) {
	messages := newFakeMessages()
	messages.Create(&domain.Message{
		ConversationID: "c1", ExternalID: "m1", Direction: domain.DirectionInbound,
		Body: strings.Repeat("é", snippetMaxLen+40), SentAt: time.Now(),
	})
	s := NewClassificationService(newFakeConversations(), messages, DefaultRuleSet(), nil)

	snippet := s.snippetFor("c1")
	if got := len([]rune(snippet)); got != snippetMaxLen {
		t.Errorf("snippet runes = %d, want %d", got, snippetMaxLen)
	}
	if s.snippetFor("no-such-conversation") != "" {
		t.Error("missing conversation must yield an empty snippet")
	}
}

func TestClassifyPendingModelFailureFallsBack(t *testing.T) {
	conversations := newFakeConversations(
		&domain.Conversation{ID: "c1", WorkspaceID: "ws1", ThreadID: "t1", Subject: "Hello again", Status: domain.StatusOpen},
	)
	model := &fakeTriageModel{err: errors.New("quota exceeded")}
	s := NewClassificationService(conversations, newFakeMessages(), DefaultRuleSet(), model)

	result, err := s.ClassifyPending(context.Background(), "ws1", 100)
	if err != nil {
		t.Fatal(err)
	}

	if result.Processed != 1 {
		t.Errorf("processed = %d, want 1 via cascade fallback", result.Processed)
	}
	if got := conversations.byID["c1"].DecisionBucket; got != domain.BucketAutoHandled {
		t.Errorf("bucket = %q, want cascade default auto_handled", got)
	}
}

func TestClassifyOne(t *testing.T) {
	conversations := newFakeConversations(
		&domain.Conversation{
			ID: "c1", WorkspaceID: "ws1", ThreadID: "t1",
			Subject: "I want a refund now", Status: domain.StatusOpen,
			DecisionBucket: domain.BucketQuickWin,
		},
	)
	s := NewClassificationService(conversations, newFakeMessages(), DefaultRuleSet(), nil)

	if err := s.ClassifyOne(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if got := conversations.byID["c1"].DecisionBucket; got != domain.BucketActNow {
		t.Errorf("bucket = %q, want act_now after reclassify", got)
	}

	// Second pass matches the stored bucket and writes nothing.
	writes := conversations.triageUpdates
	if err := s.ClassifyOne(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if conversations.triageUpdates != writes {
		t.Error("unchanged reclassify must not write")
	}
}

func TestBackfillIdempotent(t *testing.T) {
	conversations := newFakeConversations(
		// Stale: escalated but sitting in quick_win.
		&domain.Conversation{
			ID: "c1", WorkspaceID: "ws1", ThreadID: "t1",
			Subject: "Ongoing problem", Status: domain.StatusOpen, IsEscalated: true,
			DecisionBucket: domain.BucketQuickWin,
		},
		// Correct already.
		&domain.Conversation{
			ID: "c2", WorkspaceID: "ws1", ThreadID: "t2",
			Subject: "Your receipt from Acme", Status: domain.StatusOpen,
			DecisionBucket: domain.BucketAutoHandled,
		},
	)
	s := NewClassificationService(conversations, newFakeMessages(), DefaultRuleSet(), nil)

	first, err := s.Backfill(context.Background(), "ws1", "", 50, false)
	if err != nil {
		t.Fatal(err)
	}
	if first.Examined != 2 || first.Changed != 1 {
		t.Fatalf("first pass examined=%d changed=%d, want 2/1", first.Examined, first.Changed)
	}
	if first.Deltas[domain.BucketQuickWin] != -1 || first.Deltas[domain.BucketActNow] != 1 {
		t.Errorf("deltas = %v, want quick_win -1, act_now +1", first.Deltas)
	}

	second, err := s.Backfill(context.Background(), "ws1", "", 50, false)
	if err != nil {
		t.Fatal(err)
	}
	if second.Changed != 0 {
		t.Errorf("second pass changed = %d, want 0", second.Changed)
	}
	for bucket, delta := range second.Deltas {
		if delta != 0 {
			t.Errorf("second pass delta[%s] = %d, want 0", bucket, delta)
		}
	}
}

func TestBackfillDryRun(t *testing.T) {
	conversations := newFakeConversations(
		&domain.Conversation{
			ID: "c1", WorkspaceID: "ws1", ThreadID: "t1",
			Subject: "Ongoing problem", Status: domain.StatusOpen, IsEscalated: true,
			DecisionBucket: domain.BucketQuickWin,
		},
	)
	s := NewClassificationService(conversations, newFakeMessages(), DefaultRuleSet(), nil)

	result, err := s.Backfill(context.Background(), "ws1", "", 50, true)
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed != 1 {
		t.Errorf("changed = %d, want 1 reported", result.Changed)
	}
	if got := conversations.byID["c1"].DecisionBucket; got != domain.BucketQuickWin {
		t.Errorf("bucket = %q, dry run must not persist", got)
	}
}
