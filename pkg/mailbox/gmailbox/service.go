package gmailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"inboxpilot-backend/pkg/mailbox"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Service implements mailbox.Provider against the Gmail API.
type Service struct {
	clientID     string
	clientSecret string
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

func (s *Service) gmailService(ctx context.Context, creds mailbox.Credentials) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}
	if creds.RefreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}
	client := oauth2.NewClient(ctx, config.TokenSource(ctx, token))

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// FetchPage lists one page of message ids for the folder, then fetches each
// message in full. Rate-limit responses come back as mailbox.ThrottledError.
func (s *Service) FetchPage(ctx context.Context, creds mailbox.Credentials, folder string, after time.Time, pageToken string, pageSize int) (*mailbox.Page, error) {
	srv, err := s.gmailService(ctx, creds)
	if err != nil {
		return nil, err
	}

	user := "me"
	q := fmt.Sprintf("%s after:%d", folderQuery(folder), after.Unix())

	listCall := srv.Users.Messages.List(user).Q(q).MaxResults(int64(pageSize))
	if pageToken != "" {
		listCall = listCall.PageToken(pageToken)
	}
	listResp, err := listCall.Context(ctx).Do()
	if err != nil {
		return nil, translateError(err)
	}

	page := &mailbox.Page{NextPageToken: listResp.NextPageToken}
	for _, ref := range listResp.Messages {
		fullMsg, err := srv.Users.Messages.Get(user, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, translateError(err)
		}
		page.Messages = append(page.Messages, convertMessage(fullMsg, folder))
	}
	return page, nil
}

func folderQuery(folder string) string {
	if folder == "sent" {
		return "in:sent"
	}
	return "in:inbox"
}

// translateError maps Gmail quota responses onto the throttle sentinel so the
// cursor can checkpoint and back off instead of erroring.
func translateError(err error) error {
	var apiErr *googleapi.Error
	if ok := asGoogleAPIError(err, &apiErr); ok {
		if apiErr.Code == 429 {
			return &mailbox.ThrottledError{}
		}
		if apiErr.Code == 403 {
			for _, e := range apiErr.Errors {
				if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
					return &mailbox.ThrottledError{}
				}
			}
		}
	}
	return err
}

func asGoogleAPIError(err error, target **googleapi.Error) bool {
	for err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok {
			*target = apiErr
			return true
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func convertMessage(msg *gmail.Message, folder string) mailbox.Message {
	sentAt := time.UnixMilli(msg.InternalDate)

	from := parseAddress(getHeader(msg.Payload.Headers, "From"))
	var to []string
	for _, addr := range strings.Split(getHeader(msg.Payload.Headers, "To"), ",") {
		if a := parseAddress(addr); a != "" {
			to = append(to, a)
		}
	}

	body := getMessageBody(msg.Payload)

	return mailbox.Message{
		ExternalID: msg.Id,
		ThreadID:   msg.ThreadId,
		Folder:     folder,
		From:       from,
		To:         to,
		Subject:    getHeader(msg.Payload.Headers, "Subject"),
		Body:       body,
		SentAt:     sentAt,
	}
}

// parseAddress extracts the bare address from "Name <addr@host>" forms.
func parseAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if start := strings.LastIndex(raw, "<"); start >= 0 {
		if end := strings.LastIndex(raw, ">"); end > start {
			raw = raw[start+1 : end]
		}
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

func getMessageBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	// If the payload itself is the body
	if payload.Body != nil && payload.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(data)
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					htmlBody = string(data)
				}
			} else if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					plainBody = string(data)
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody
	}
	return htmlBody
}
