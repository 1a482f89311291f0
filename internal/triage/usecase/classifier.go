package usecase

import (
	"fmt"
	"strings"

	"inboxpilot-backend/internal/triage/domain"
)

// RuleInput is everything the deterministic cascade looks at.
type RuleInput struct {
	Subject       string
	Body          string
	Category      string
	Status        string
	RequiresReply *bool
	IsEscalated   bool
	HasDraftReply bool
}

// RuleResult is the cascade outcome plus the derived attributes and the
// justification string the UI shows.
type RuleResult struct {
	Bucket        string
	CognitiveLoad string
	RiskLevel     string
	Justification string
	Rule          string
}

// Evaluate runs the precedence cascade, top to bottom, first match wins. The
// ordering here is the contract: escalation outranks noise, noise outranks
// quick wins. The rule path never yields the wait bucket.
func (rs *RuleSet) Evaluate(in RuleInput) RuleResult {
	// 1. Explicit escalation wins over everything.
	if in.IsEscalated {
		return result(domain.BucketActNow, domain.RiskRetention, "escalated",
			"conversation was explicitly escalated")
	}

	// 2. Urgency lexicon on subject or body.
	if word, ok := containsAny(in.Subject+" "+in.Body, rs.urgency); ok {
		return result(domain.BucketActNow, domain.RiskRetention, "urgency_lexicon",
			fmt.Sprintf("urgent language detected (%q)", word))
	}

	// 3. Known noise category.
	if _, ok := rs.noiseCategories[strings.ToLower(in.Category)]; ok && in.Category != "" {
		return result(domain.BucketAutoHandled, domain.RiskNone, "noise_category",
			fmt.Sprintf("category %q needs no action", in.Category))
	}

	// 4. Noise subject patterns (receipts, confirmations, unsubscribe footers).
	if pattern, ok := rs.matchNoisePattern(in.Subject); ok {
		return result(domain.BucketAutoHandled, domain.RiskNone, "noise_pattern",
			fmt.Sprintf("subject matches automated-mail pattern %s", pattern))
	}

	// 5. Explicitly no reply needed.
	if in.RequiresReply != nil && !*in.RequiresReply {
		return result(domain.BucketAutoHandled, domain.RiskNone, "no_reply_needed",
			"no reply required")
	}

	// 6. Quick-win lexicon (simple questions, availability, pricing).
	if word, ok := containsAny(in.Subject, rs.quickWin); ok {
		return result(domain.BucketQuickWin, domain.RiskNone, "quickwin_lexicon",
			fmt.Sprintf("simple request detected (%q)", word))
	}

	// 7. A draft already exists and the reply is still owed.
	if in.HasDraftReply && (in.RequiresReply == nil || *in.RequiresReply) {
		return result(domain.BucketQuickWin, domain.RiskNone, "draft_ready",
			"a draft reply is ready to send")
	}

	// 8. Resolved or closed conversations need nothing.
	if in.Status == domain.StatusResolved || in.Status == domain.StatusClosed {
		return result(domain.BucketAutoHandled, domain.RiskNone, "resolved",
			"conversation is already resolved")
	}

	// 9. Reply explicitly required.
	if in.RequiresReply != nil && *in.RequiresReply {
		return result(domain.BucketQuickWin, domain.RiskNone, "reply_required",
			"a reply is required")
	}

	// 10. Fallback. The original flags this as possibly mis-classifying
	// ambiguous conversations; behavior preserved as-is.
	return result(domain.BucketAutoHandled, domain.RiskNone, "default",
		"no action signals found")
}

func result(bucket, risk, rule, justification string) RuleResult {
	load := domain.CognitiveLoadLow
	if bucket == domain.BucketActNow {
		load = domain.CognitiveLoadHigh
	}
	return RuleResult{
		Bucket:        bucket,
		CognitiveLoad: load,
		RiskLevel:     risk,
		Justification: justification,
		Rule:          rule,
	}
}

// RuleInputFromConversation maps the stored conversation onto cascade input.
func RuleInputFromConversation(conv *domain.Conversation) RuleInput {
	return RuleInput{
		Subject:       conv.Subject,
		Category:      conv.Category,
		Status:        conv.Status,
		RequiresReply: conv.RequiresReply,
		IsEscalated:   conv.IsEscalated || conv.Status == domain.StatusEscalated,
		HasDraftReply: conv.HasDraftReply,
	}
}
