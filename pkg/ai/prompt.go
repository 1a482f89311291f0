package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Lanes the model may assign. "wait" is reachable only through this path;
// the deterministic cascade never produces it.
var validLanes = map[string]bool{
	"act_now":      true,
	"quick_win":    true,
	"auto_handled": true,
	"wait":         true,
}

func buildTriagePrompt(batch []ConversationContext) (string, error) {
	input, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch: %w", err)
	}

	return fmt.Sprintf(`You are an email triage assistant for a small business owner.
For each conversation below, decide how it should be handled.

Return ONLY a JSON array, one object per conversation, with these fields:
- "id": copied from the input
- "intent": one of "question", "complaint", "request", "scheduling", "feedback", "other"
- "priority": one of "high", "medium", "low"
- "lane": one of "act_now", "quick_win", "auto_handled", "wait"
- "sentiment": one of "positive", "neutral", "negative"
- "requires_reply": true or false
- "confidence": 0.0 to 1.0

Use "wait" only when the conversation is genuinely ambiguous and watching for
a follow-up is the right call. No markdown, no commentary.

CONVERSATIONS:
%s`, string(input)), nil
}

// parseTriageResponse extracts the JSON array from a model response,
// tolerating markdown fences and surrounding prose.
func parseTriageResponse(text string) ([]TriageResult, error) {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.LastIndex(text, "]"); end > start {
			text = text[start : end+1]
		}
	}

	var results []TriageResult
	if err := json.Unmarshal([]byte(text), &results); err != nil {
		return nil, fmt.Errorf("failed to parse triage response: %w", err)
	}

	out := results[:0]
	for _, r := range results {
		if r.ID == "" {
			continue
		}
		if !validLanes[r.Lane] {
			r.Lane = ""
		}
		out = append(out, r)
	}
	return out, nil
}
