package usecase

import (
	"encoding/json"
	"fmt"
)

// Job types carried in the queue envelope. Unknown tags route to the discard
// path; there is deliberately no silent default.
const (
	JobMaterializeRecord    = "materialize_record"
	JobClassifyConversation = "classify_conversation"
	JobRunImport            = "run_import"
)

// JobPayload is the tagged union inside every queue job.
type JobPayload struct {
	JobType        string `json:"job_type"`
	WorkspaceID    string `json:"workspace_id"`
	RawRecordID    string `json:"raw_record_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Folder         string `json:"folder,omitempty"`
}

// Validate enforces the structural contract. A failure here means a producer
// bug, so the job is discarded rather than retried.
func (p *JobPayload) Validate() error {
	if p.WorkspaceID == "" {
		return fmt.Errorf("missing workspace_id")
	}
	switch p.JobType {
	case JobMaterializeRecord:
		if p.RawRecordID == "" {
			return fmt.Errorf("materialize job missing raw_record_id")
		}
	case JobClassifyConversation:
		if p.ConversationID == "" {
			return fmt.Errorf("classify job missing conversation_id")
		}
	case JobRunImport:
		// Workspace id alone is enough; the cursor decides the folder.
	default:
		return fmt.Errorf("unknown job type %q", p.JobType)
	}
	return nil
}

// DecodePayload parses a raw queue payload.
func DecodePayload(raw []byte) (*JobPayload, error) {
	var p JobPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("malformed job payload: %w", err)
	}
	return &p, nil
}

// EncodePayload marshals a payload for enqueueing.
func EncodePayload(p JobPayload) []byte {
	data, _ := json.Marshal(p)
	return data
}

// deadletterEnvelope is the enriched payload archived with a job that
// exhausted its retry budget.
type deadletterEnvelope struct {
	OriginQueue string          `json:"origin_queue"`
	JobID       string          `json:"job_id"`
	Attempts    int             `json:"attempts"`
	Error       string          `json:"error"`
	Payload     json.RawMessage `json:"payload"`
}
