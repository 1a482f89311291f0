package usecase

import (
	"context"
	"fmt"
	"strings"

	ingestdomain "inboxpilot-backend/internal/ingestion/domain"
	ingestrepo "inboxpilot-backend/internal/ingestion/repository"
	"inboxpilot-backend/internal/triage/domain"
	"inboxpilot-backend/internal/triage/repository"
	"inboxpilot-backend/pkg/bodytext"
	"inboxpilot-backend/pkg/logger"
)

// Materializer converts raw fetched records into customer, conversation and
// message rows. Every write is an idempotent upsert keyed on stable external
// identifiers, so reprocessing a batch is always safe.
type Materializer struct {
	raws          ingestrepo.RawRecordRepository
	customers     repository.CustomerRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	rules         *RuleSet

	// Normalized owner address plus aliases. Bare-domain entries match any
	// sender in that domain.
	ownerIdentities []string

	// When set, reclassification of an updated conversation is enqueued as a
	// durable job instead of running inline.
	enqueueClassify func(ctx context.Context, workspaceID, conversationID string)
}

// SetClassifyEnqueue wires the durable reclassification path in after
// construction.
func (m *Materializer) SetClassifyEnqueue(fn func(ctx context.Context, workspaceID, conversationID string)) {
	m.enqueueClassify = fn
}

func NewMaterializer(
	raws ingestrepo.RawRecordRepository,
	customers repository.CustomerRepository,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	rules *RuleSet,
	ownerIdentities []string,
) *Materializer {
	normalized := make([]string, 0, len(ownerIdentities))
	for _, id := range ownerIdentities {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			normalized = append(normalized, id)
		}
	}
	return &Materializer{
		raws:            raws,
		customers:       customers,
		conversations:   conversations,
		messages:        messages,
		rules:           rules,
		ownerIdentities: normalized,
	}
}

// MaterializeBatch processes a set of raw record ids with a shared customer
// cache. The cache only saves lookups; the unique index is the guarantee.
func (m *Materializer) MaterializeBatch(ctx context.Context, rawRecordIDs []string) error {
	cache := make(map[string]*domain.Customer)
	for _, id := range rawRecordIDs {
		if err := m.materialize(ctx, id, cache); err != nil {
			return err
		}
	}
	return nil
}

// MaterializeOne processes a single raw record, as invoked from the worker
// loop one job at a time.
func (m *Materializer) MaterializeOne(ctx context.Context, rawRecordID string) error {
	return m.materialize(ctx, rawRecordID, make(map[string]*domain.Customer))
}

func (m *Materializer) materialize(ctx context.Context, rawRecordID string, cache map[string]*domain.Customer) error {
	record, err := m.raws.GetByID(rawRecordID)
	if err != nil {
		return fmt.Errorf("load raw record %s: %w", rawRecordID, err)
	}

	// Terminal states are no-ops so redelivered jobs cost nothing.
	if record.Status == ingestdomain.RawStatusMaterialized || record.Status == ingestdomain.RawStatusExcluded {
		return nil
	}

	direction, actor := m.inferDirection(record.FromAddress)
	counterpart := m.resolveCounterpart(record, direction)

	cleanBody := bodytext.Clean(record.Body)

	var customerID string
	if counterpart != "" {
		customer, ok := cache[counterpart]
		if !ok {
			customer, err = m.customers.FindOrCreate(record.WorkspaceID, counterpart, "")
			if err != nil {
				return fmt.Errorf("resolve customer %s: %w", counterpart, err)
			}
			cache[counterpart] = customer
		}
		customerID = customer.ID
	}

	threadID := record.ThreadID
	if threadID == "" {
		// Threadless messages become their own single-message conversation.
		threadID = record.ExternalID
	}

	conv, created, err := m.conversations.FindOrCreateByThread(&domain.Conversation{
		WorkspaceID:   record.WorkspaceID,
		ThreadID:      threadID,
		CustomerID:    customerID,
		Subject:       record.Subject,
		Status:        domain.StatusOpen,
		LastMessageAt: record.SentAt,
	})
	if err != nil {
		return fmt.Errorf("resolve conversation for thread %s: %w", threadID, err)
	}

	exists, err := m.messages.Exists(conv.ID, record.ExternalID)
	if err != nil {
		return fmt.Errorf("check message existence: %w", err)
	}
	if !exists {
		if err := m.messages.Create(&domain.Message{
			WorkspaceID:    record.WorkspaceID,
			ConversationID: conv.ID,
			ExternalID:     record.ExternalID,
			Direction:      direction,
			ActorType:      actor,
			FromAddress:    strings.ToLower(record.FromAddress),
			Subject:        record.Subject,
			Body:           cleanBody,
			SentAt:         record.SentAt,
		}); err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if err := m.conversations.Touch(conv.ID, record.SentAt); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
	}

	// Stored for audit but not classified: nothing usable survived cleaning.
	if cleanBody == "" && strings.TrimSpace(record.Subject) == "" {
		return m.raws.MarkStatus(record.ID, ingestdomain.RawStatusExcluded, "")
	}

	// Existing conversations get reclassified so their bucket reflects the
	// latest message. The AI path is never taken from here; new conversations
	// wait for the batch classification pass.
	if !created && conv.DecisionBucket != "" {
		if m.enqueueClassify != nil {
			m.enqueueClassify(ctx, record.WorkspaceID, conv.ID)
		} else {
			m.reclassifyCheap(conv)
		}
	}

	return m.raws.MarkStatus(record.ID, ingestdomain.RawStatusMaterialized, "")
}

func (m *Materializer) reclassifyCheap(conv *domain.Conversation) {
	res := m.rules.Evaluate(RuleInputFromConversation(conv))
	if res.Bucket == conv.DecisionBucket {
		return
	}
	update := repository.TriageUpdate{
		DecisionBucket: &res.Bucket,
		CognitiveLoad:  &res.CognitiveLoad,
		RiskLevel:      &res.RiskLevel,
		Justification:  &res.Justification,
	}
	if err := m.conversations.UpdateTriage(conv.ID, update); err != nil {
		logger.WithFields(map[string]interface{}{
			"conversation_id": conv.ID,
			"error":           err.Error(),
		}).Warn("cheap reclassify failed")
	}
}

// inferDirection decides outbound vs inbound from the owner identity set.
func (m *Materializer) inferDirection(from string) (direction, actor string) {
	if m.isOwner(from) {
		return domain.DirectionOutbound, domain.ActorOwner
	}
	return domain.DirectionInbound, domain.ActorCustomer
}

func (m *Materializer) isOwner(address string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return false
	}
	addrDomain := ""
	if at := strings.LastIndex(address, "@"); at >= 0 {
		addrDomain = address[at+1:]
	}
	for _, identity := range m.ownerIdentities {
		if identity == address {
			return true
		}
		// Bare-domain aliases ("acme.com") match any sender in the domain.
		if !strings.Contains(identity, "@") && addrDomain != "" && identity == addrDomain {
			return true
		}
	}
	return false
}

// resolveCounterpart picks the customer-side address: the first recipient
// outside the owner identity set for outbound mail, the sender otherwise.
func (m *Materializer) resolveCounterpart(record *ingestdomain.RawRecord, direction string) string {
	if direction == domain.DirectionInbound {
		return strings.ToLower(strings.TrimSpace(record.FromAddress))
	}
	for _, to := range strings.Split(record.ToAddresses, ",") {
		to = strings.ToLower(strings.TrimSpace(to))
		if to != "" && !m.isOwner(to) {
			return to
		}
	}
	return ""
}
