package imapbox

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"inboxpilot-backend/pkg/mailbox"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomail "github.com/emersion/go-message/mail"
)

// Service implements mailbox.Provider over IMAP for non-Gmail mailboxes.
type Service struct {
	host string
	port string
}

func NewService(host, port string) *Service {
	return &Service{host: host, port: port}
}

// FetchPage searches the folder for messages since the cutoff and returns one
// page. The page token is the numeric offset into the UID list, so resuming
// is just re-searching and skipping.
func (s *Service) FetchPage(ctx context.Context, creds mailbox.Credentials, folder string, after time.Time, pageToken string, pageSize int) (*mailbox.Page, error) {
	c, err := client.DialTLS(s.host+":"+s.port, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial: %w", err)
	}
	defer c.Logout()

	if err := c.Login(creds.Username, creds.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}

	mailboxName := imapFolder(folder)
	if _, err := c.Select(mailboxName, true); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", mailboxName, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = after
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	// Newest first for parity with the Gmail provider.
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })

	offset := 0
	if pageToken != "" {
		offset, err = strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("invalid imap page token %q", pageToken)
		}
	}
	if offset >= len(uids) {
		return &mailbox.Page{}, nil
	}

	end := offset + pageSize
	if end > len(uids) {
		end = len(uids)
	}
	pageUIDs := uids[offset:end]

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(pageUIDs...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(pageUIDs))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	page := &mailbox.Page{}
	for msg := range messages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if m := convertMessage(msg, section, folder); m != nil {
			page.Messages = append(page.Messages, *m)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	if end < len(uids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func imapFolder(folder string) string {
	if folder == "sent" {
		return "Sent"
	}
	return "INBOX"
}

func convertMessage(msg *imap.Message, section *imap.BodySectionName, folder string) *mailbox.Message {
	if msg == nil || msg.Envelope == nil {
		return nil
	}

	out := &mailbox.Message{
		ExternalID: fmt.Sprintf("imap-%d", msg.Uid),
		Folder:     folder,
		Subject:    msg.Envelope.Subject,
		SentAt:     msg.Envelope.Date,
	}
	if msg.Envelope.MessageId != "" {
		out.ExternalID = msg.Envelope.MessageId
	}
	if len(msg.Envelope.InReplyTo) > 0 {
		out.ThreadID = msg.Envelope.InReplyTo
	}
	if len(msg.Envelope.From) > 0 {
		out.From = strings.ToLower(msg.Envelope.From[0].Address())
	}
	for _, addr := range msg.Envelope.To {
		out.To = append(out.To, strings.ToLower(addr.Address()))
	}

	body := msg.GetBody(section)
	if body == nil {
		return out
	}
	mr, err := gomail.CreateReader(body)
	if err != nil {
		return out
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if _, ok := part.Header.(*gomail.InlineHeader); ok {
			data, err := io.ReadAll(part.Body)
			if err == nil && len(data) > 0 {
				out.Body = string(data)
				break
			}
		}
	}
	return out
}
