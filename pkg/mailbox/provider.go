package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message is one provider message in provider-neutral form. Both the polling
// cursor and the push webhook resolve down to this type before ingestion.
type Message struct {
	ExternalID string
	ThreadID   string
	Folder     string
	From       string
	To         []string
	Subject    string
	Body       string
	SentAt     time.Time
}

// Page is one provider page. NextPageToken empty means the folder is exhausted.
type Page struct {
	Messages      []Message
	NextPageToken string
}

// Credentials carries whatever the active provider needs. OAuth fields for
// Gmail, username/password for IMAP.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Username     string
	Password     string
}

// ThrottledError signals a provider rate limit. The cursor checkpoints and
// backs off instead of failing.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("provider throttled, retry after %s", e.RetryAfter)
}

// IsThrottled reports whether err is (or wraps) a provider throttle.
func IsThrottled(err error) bool {
	var t *ThrottledError
	return errors.As(err, &t)
}

// Provider fetches one page of messages from a logical folder, newest first,
// filtered to messages at or after the given cutoff. The cutoff filter is
// advisory; callers must re-check client-side.
type Provider interface {
	FetchPage(ctx context.Context, creds Credentials, folder string, after time.Time, pageToken string, pageSize int) (*Page, error)
}
