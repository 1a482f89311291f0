package ai

import (
	"context"
	"fmt"
	"net"
	"strings"

	"inboxpilot-backend/pkg/logger"
)

// FallbackService routes triage calls: Gemini first (better structured
// output), Ollama when Gemini is unreachable or out of quota.
type FallbackService struct {
	gemini TriageService
	ollama *OllamaService
}

func NewFallbackService(gemini TriageService, ollama *OllamaService) *FallbackService {
	return &FallbackService{
		gemini: gemini,
		ollama: ollama,
	}
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(net.Error); ok {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
	} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
	} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

func (f *FallbackService) ClassifyConversations(ctx context.Context, batch []ConversationContext) ([]TriageResult, error) {
	if f.gemini != nil {
		results, err := f.gemini.ClassifyConversations(ctx, batch)
		if err == nil {
			return results, nil
		}
		if isQuotaError(err) || isConnectionError(err) {
			logger.WithField("error", err.Error()).Warn("gemini triage failed, falling back to ollama")
		} else {
			logger.WithField("error", err.Error()).Warn("gemini triage error, trying ollama")
		}
	}

	if f.ollama != nil {
		results, err := f.ollama.ClassifyConversations(ctx, batch)
		if err == nil {
			return results, nil
		}
		return nil, fmt.Errorf("ollama triage failed: %w", err)
	}

	return nil, fmt.Errorf("no AI provider available for triage")
}
