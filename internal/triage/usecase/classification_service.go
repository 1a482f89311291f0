package usecase

import (
	"context"
	"fmt"

	"inboxpilot-backend/internal/triage/domain"
	"inboxpilot-backend/internal/triage/repository"
	"inboxpilot-backend/pkg/ai"
	"inboxpilot-backend/pkg/logger"
)

const (
	aiBatchLimit  = 20
	snippetMaxLen = 280
)

// ClassificationService owns the triage fields on conversations: the rule
// cascade for everything it can decide deterministically, and a bounded
// AI-assisted pass for the rest.
type ClassificationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	rules         *RuleSet
	model         ai.TriageService
}

func NewClassificationService(conversations repository.ConversationRepository, messages repository.MessageRepository, rules *RuleSet, model ai.TriageService) *ClassificationService {
	return &ClassificationService{
		conversations: conversations,
		messages:      messages,
		rules:         rules,
		model:         model,
	}
}

// ClassifyResult summarizes one classification invocation.
type ClassifyResult struct {
	Processed  int `json:"processed"`
	Assisted   int `json:"assisted"`
	Unchanged  int `json:"unchanged"`
	Remaining  int `json:"remaining"`
}

// ClassifyPending buckets unclassified conversations for a workspace. The
// cascade decides most; conversations with no usable signals go to the AI
// path in one bounded batch.
func (s *ClassificationService) ClassifyPending(ctx context.Context, workspaceID string, limit int) (*ClassifyResult, error) {
	convs, err := s.conversations.ListUnclassified(workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unclassified: %w", err)
	}

	result := &ClassifyResult{}
	var ambiguous []domain.Conversation

	for i := range convs {
		conv := convs[i]
		res := s.rules.Evaluate(RuleInputFromConversation(&conv))

		// A default verdict with no explicit reply signal means the cascade
		// had nothing to go on; give the model a chance before persisting.
		if res.Rule == "default" && conv.RequiresReply == nil && len(ambiguous) < aiBatchLimit && s.model != nil {
			ambiguous = append(ambiguous, conv)
			continue
		}

		if err := s.applyRuleResult(conv.ID, res); err != nil {
			return nil, err
		}
		result.Processed++
	}

	assisted, err := s.classifyAssisted(ctx, ambiguous)
	if err != nil {
		// The assisted path is best-effort: fall back to the cascade verdict
		// so nothing is left unbucketed.
		logger.WithField("error", err.Error()).Warn("assisted triage failed, applying cascade fallback")
		for i := range ambiguous {
			res := s.rules.Evaluate(RuleInputFromConversation(&ambiguous[i]))
			if err := s.applyRuleResult(ambiguous[i].ID, res); err != nil {
				return nil, err
			}
			result.Processed++
		}
	} else {
		result.Assisted = assisted.persisted
		result.Unchanged = assisted.unchanged
		result.Processed += assisted.persisted + assisted.unchanged
	}

	// Remaining estimate for the caller to decide whether to chain another
	// invocation.
	rest, err := s.conversations.ListUnclassified(workspaceID, 1)
	if err == nil {
		result.Remaining = len(rest)
	}
	return result, nil
}

// ClassifyOne re-runs the cheap cascade on a single conversation, as invoked
// from the worker loop. The AI path is never taken here.
func (s *ClassificationService) ClassifyOne(ctx context.Context, conversationID string) error {
	conv, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	res := s.rules.Evaluate(RuleInputFromConversation(conv))
	if res.Bucket == conv.DecisionBucket {
		return nil
	}
	return s.applyRuleResult(conv.ID, res)
}

func (s *ClassificationService) applyRuleResult(conversationID string, res RuleResult) error {
	update := repository.TriageUpdate{
		DecisionBucket: &res.Bucket,
		CognitiveLoad:  &res.CognitiveLoad,
		RiskLevel:      &res.RiskLevel,
		Justification:  &res.Justification,
	}
	if err := s.conversations.UpdateTriage(conversationID, update); err != nil {
		return fmt.Errorf("persist triage for %s: %w", conversationID, err)
	}
	return nil
}

// snippetFor gives the model the start of the latest customer message. The
// body is already cleaned at materialization time.
func (s *ClassificationService) snippetFor(conversationID string) string {
	if s.messages == nil {
		return ""
	}
	msg, err := s.messages.LatestInbound(conversationID)
	if err != nil || msg == nil {
		return ""
	}
	runes := []rune(msg.Body)
	if len(runes) > snippetMaxLen {
		runes = runes[:snippetMaxLen]
	}
	return string(runes)
}

type assistedOutcome struct {
	persisted int
	unchanged int
}

// classifyAssisted sends a bounded batch to the model and writes back only
// the conversations whose fields actually changed. Unchanged results are
// counted but not persisted.
func (s *ClassificationService) classifyAssisted(ctx context.Context, convs []domain.Conversation) (*assistedOutcome, error) {
	out := &assistedOutcome{}
	if len(convs) == 0 || s.model == nil {
		return out, nil
	}

	batch := make([]ai.ConversationContext, len(convs))
	byID := make(map[string]*domain.Conversation, len(convs))
	for i := range convs {
		batch[i] = ai.ConversationContext{
			ID:       convs[i].ID,
			Subject:  convs[i].Subject,
			Snippet:  s.snippetFor(convs[i].ID),
			Category: convs[i].Category,
		}
		byID[convs[i].ID] = &convs[i]
	}

	results, err := s.model.ClassifyConversations(ctx, batch)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		conv, ok := byID[r.ID]
		if !ok {
			continue
		}

		update := repository.TriageUpdate{}
		changed := false
		if r.Lane != "" && r.Lane != conv.DecisionBucket {
			lane := r.Lane
			load := domain.CognitiveLoadLow
			if lane == domain.BucketActNow {
				load = domain.CognitiveLoadHigh
			}
			risk := domain.RiskNone
			if lane == domain.BucketActNow {
				risk = domain.RiskRetention
			}
			justification := "assisted triage"
			update.DecisionBucket = &lane
			update.CognitiveLoad = &load
			update.RiskLevel = &risk
			update.Justification = &justification
			changed = true
		}
		if r.Intent != "" && r.Intent != conv.Intent {
			update.Intent = &r.Intent
			changed = true
		}
		if r.Priority != "" && r.Priority != conv.Priority {
			update.Priority = &r.Priority
			changed = true
		}
		if r.Lane != "" && r.Lane != conv.Lane {
			update.Lane = &r.Lane
			changed = true
		}
		if r.Sentiment != "" && r.Sentiment != conv.Sentiment {
			update.Sentiment = &r.Sentiment
			changed = true
		}
		if r.RequiresReply != nil && (conv.RequiresReply == nil || *conv.RequiresReply != *r.RequiresReply) {
			update.RequiresReply = r.RequiresReply
			changed = true
		}
		if r.Confidence > 0 && r.Confidence != conv.Confidence {
			update.Confidence = &r.Confidence
			changed = true
		}

		if !changed {
			out.unchanged++
			continue
		}
		if err := s.conversations.UpdateTriage(conv.ID, update); err != nil {
			return nil, fmt.Errorf("persist assisted triage for %s: %w", conv.ID, err)
		}
		out.persisted++
	}
	return out, nil
}
