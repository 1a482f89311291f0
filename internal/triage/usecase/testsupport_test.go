package usecase

import (
	"fmt"
	"time"

	ingestdomain "inboxpilot-backend/internal/ingestion/domain"
	"inboxpilot-backend/internal/triage/domain"
	"inboxpilot-backend/internal/triage/repository"
)

// In-memory repository fakes shared by the usecase tests.

type fakeRawRecords struct {
	records map[string]*ingestdomain.RawRecord
}

func newFakeRawRecords(records ...*ingestdomain.RawRecord) *fakeRawRecords {
	f := &fakeRawRecords{records: make(map[string]*ingestdomain.RawRecord)}
	for _, r := range records {
		if r.Status == "" {
			r.Status = ingestdomain.RawStatusPending
		}
		f.records[r.ID] = r
	}
	return f
}

func (f *fakeRawRecords) UpsertBatch(records []ingestdomain.RawRecord) (int, error) {
	inserted := 0
	for i := range records {
		key := records[i].WorkspaceID + "/" + records[i].ExternalID
		if _, ok := f.records[key]; ok {
			continue
		}
		r := records[i]
		if r.ID == "" {
			r.ID = key
		}
		if r.Status == "" {
			r.Status = ingestdomain.RawStatusPending
		}
		f.records[r.ID] = &r
		inserted++
	}
	return inserted, nil
}

func (f *fakeRawRecords) GetByID(id string) (*ingestdomain.RawRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("raw record %s not found", id)
	}
	return r, nil
}

func (f *fakeRawRecords) ListPendingIDs(workspaceID string, externalIDs []string) ([]string, error) {
	var ids []string
	for _, ext := range externalIDs {
		for _, r := range f.records {
			if r.WorkspaceID == workspaceID && r.ExternalID == ext && r.Status == ingestdomain.RawStatusPending {
				ids = append(ids, r.ID)
			}
		}
	}
	return ids, nil
}

func (f *fakeRawRecords) MarkStatus(id, status, lastError string) error {
	r, ok := f.records[id]
	if !ok {
		return fmt.Errorf("raw record %s not found", id)
	}
	r.Status = status
	r.LastError = lastError
	return nil
}

func (f *fakeRawRecords) MarkFailedUnlessMaterialized(id, lastError string) error {
	r, ok := f.records[id]
	if !ok {
		return fmt.Errorf("raw record %s not found", id)
	}
	if r.Status == ingestdomain.RawStatusMaterialized || r.Status == ingestdomain.RawStatusExcluded {
		return nil
	}
	r.Status = ingestdomain.RawStatusFailed
	r.LastError = lastError
	return nil
}

func (f *fakeRawRecords) CountByWorkspace(workspaceID string) (int64, error) {
	var n int64
	for _, r := range f.records {
		if r.WorkspaceID == workspaceID {
			n++
		}
	}
	return n, nil
}

type fakeCustomers struct {
	byEmail map[string]*domain.Customer
	created int
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{byEmail: make(map[string]*domain.Customer)}
}

func (f *fakeCustomers) FindOrCreate(workspaceID, email, name string) (*domain.Customer, error) {
	key := workspaceID + "/" + email
	if c, ok := f.byEmail[key]; ok {
		return c, nil
	}
	c := &domain.Customer{ID: key, WorkspaceID: workspaceID, Email: email, Name: name}
	f.byEmail[key] = c
	f.created++
	return c, nil
}

func (f *fakeCustomers) GetByID(id string) (*domain.Customer, error) {
	for _, c := range f.byEmail {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("customer %s not found", id)
}

type fakeConversations struct {
	byID          map[string]*domain.Conversation
	triageUpdates int
}

func newFakeConversations(convs ...*domain.Conversation) *fakeConversations {
	f := &fakeConversations{byID: make(map[string]*domain.Conversation)}
	for _, c := range convs {
		f.byID[c.ID] = c
	}
	return f
}

func (f *fakeConversations) GetByID(id string) (*domain.Conversation, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s not found", id)
	}
	return c, nil
}

func (f *fakeConversations) FindOrCreateByThread(conv *domain.Conversation) (*domain.Conversation, bool, error) {
	for _, existing := range f.byID {
		if existing.WorkspaceID == conv.WorkspaceID && existing.ThreadID == conv.ThreadID {
			return existing, false, nil
		}
	}
	c := *conv
	if c.ID == "" {
		c.ID = conv.WorkspaceID + "/" + conv.ThreadID
	}
	c.MessageCount = 0
	f.byID[c.ID] = &c
	return &c, true, nil
}

func (f *fakeConversations) Touch(id string, lastMessageAt time.Time) error {
	c, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	c.MessageCount++
	if lastMessageAt.After(c.LastMessageAt) {
		c.LastMessageAt = lastMessageAt
	}
	return nil
}

func (f *fakeConversations) UpdateTriage(id string, update repository.TriageUpdate) error {
	c, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	f.triageUpdates++
	if update.DecisionBucket != nil {
		c.DecisionBucket = *update.DecisionBucket
	}
	if update.CognitiveLoad != nil {
		c.CognitiveLoad = *update.CognitiveLoad
	}
	if update.RiskLevel != nil {
		c.RiskLevel = *update.RiskLevel
	}
	if update.Justification != nil {
		c.Justification = *update.Justification
	}
	if update.Category != nil {
		c.Category = *update.Category
	}
	if update.Priority != nil {
		c.Priority = *update.Priority
	}
	if update.Intent != nil {
		c.Intent = *update.Intent
	}
	if update.Lane != nil {
		c.Lane = *update.Lane
	}
	if update.Sentiment != nil {
		c.Sentiment = *update.Sentiment
	}
	if update.RequiresReply != nil {
		c.RequiresReply = update.RequiresReply
	}
	if update.Confidence != nil {
		c.Confidence = *update.Confidence
	}
	return nil
}

func (f *fakeConversations) ListUnclassified(workspaceID string, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	for _, c := range f.byID {
		if c.WorkspaceID == workspaceID && c.DecisionBucket == "" {
			out = append(out, *c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeConversations) ListClassified(workspaceID, bucket string, limit, offset int) ([]domain.Conversation, error) {
	var all []domain.Conversation
	for _, c := range f.byID {
		if c.WorkspaceID != workspaceID || c.DecisionBucket == "" {
			continue
		}
		if bucket != "" && c.DecisionBucket != bucket {
			continue
		}
		all = append(all, *c)
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeConversations) CountByBucket(workspaceID string) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, c := range f.byID {
		if c.WorkspaceID == workspaceID && c.DecisionBucket != "" {
			counts[c.DecisionBucket]++
		}
	}
	return counts, nil
}

func triageUpdateBucket(bucket string) repository.TriageUpdate {
	return repository.TriageUpdate{DecisionBucket: &bucket}
}

type fakeMessages struct {
	messages map[string]*domain.Message
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{messages: make(map[string]*domain.Message)}
}

func (f *fakeMessages) Exists(conversationID, externalID string) (bool, error) {
	_, ok := f.messages[conversationID+"/"+externalID]
	return ok, nil
}

func (f *fakeMessages) Create(message *domain.Message) error {
	key := message.ConversationID + "/" + message.ExternalID
	if _, ok := f.messages[key]; ok {
		return fmt.Errorf("duplicate message %s", key)
	}
	f.messages[key] = message
	return nil
}

func (f *fakeMessages) LatestInbound(conversationID string) (*domain.Message, error) {
	var latest *domain.Message
	for _, m := range f.messages {
		if m.ConversationID != conversationID || m.Direction != domain.DirectionInbound {
			continue
		}
		if latest == nil || m.SentAt.After(latest.SentAt) {
			latest = m
		}
	}
	return latest, nil
}
