package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pipeusecase "inboxpilot-backend/internal/pipeline/usecase"
	queuedomain "inboxpilot-backend/internal/queue/domain"
	queuerepo "inboxpilot-backend/internal/queue/repository"
	"inboxpilot-backend/pkg/logger"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// MailboxNotification is the payload Gmail publishes on the watch topic.
type MailboxNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// WorkspaceResolver maps a notification's mailbox address to a workspace id.
// Empty return means the address is not ours and the message is dropped.
type WorkspaceResolver func(emailAddress string) string

// Service subscribes to the Gmail push topic and converts notifications into
// durable import jobs. The queue absorbs bursts; history ids dedupe the rest.
type Service struct {
	client    *pubsub.Client
	queues    queuerepo.Store
	resolve   WorkspaceResolver
	topicName string
	subName   string

	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(projectID, topicName, subName, credentialsFile string, queues queuerepo.Store, resolve WorkspaceResolver) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	if subName == "" {
		subName = topicName + "-sub"
	}

	return &Service{
		client:        client,
		queues:        queues,
		resolve:       resolve,
		topicName:     topicName,
		subName:       subName,
		lastHistoryID: make(map[string]uint64),
	}, nil
}

// Start blocks receiving notifications until ctx is cancelled. The
// subscription is created on first run if the topic already exists.
func (s *Service) Start(ctx context.Context) {
	logger.WithFields(map[string]interface{}{
		"topic":        s.topicName,
		"subscription": s.subName,
	}).Info("starting mailbox notification listener")

	sub := s.client.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		logger.WithField("error", err.Error()).Error("subscription existence check failed")
		return
	}

	if !exists {
		topic := s.client.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			logger.WithField("error", err.Error()).Error("topic existence check failed")
			return
		}
		if !topicExists {
			logger.WithField("topic", s.topicName).Error("push topic missing, notifications disabled")
			return
		}

		sub, err = s.client.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			logger.WithField("error", err.Error()).Error("subscription create failed")
			return
		}
		logger.WithField("subscription", s.subName).Info("created push subscription")
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg.Data)
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		logger.WithField("error", err.Error()).Error("notification receive loop exited")
	}
}

// HandleNotification processes one decoded notification. Exported so the HTTP
// webhook delivery can reuse the same dedupe and enqueue path.
func (s *Service) HandleNotification(ctx context.Context, n MailboxNotification) error {
	workspaceID := s.resolve(n.EmailAddress)
	if workspaceID == "" {
		logger.WithField("email", n.EmailAddress).Warn("notification for unknown mailbox dropped")
		return nil
	}

	if s.seen(workspaceID, n.HistoryID) {
		return nil
	}

	payload := pipeusecase.EncodePayload(pipeusecase.JobPayload{
		JobType:     pipeusecase.JobRunImport,
		WorkspaceID: workspaceID,
	})
	if _, err := s.queues.Enqueue(ctx, queuedomain.QueueImport, payload, 0); err != nil {
		return fmt.Errorf("enqueue import job: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"workspace_id": workspaceID,
		"history_id":   n.HistoryID,
	}).Info("mailbox notification enqueued")
	return nil
}

func (s *Service) handleMessage(ctx context.Context, data []byte) {
	var n MailboxNotification
	if err := json.Unmarshal(data, &n); err != nil {
		logger.WithField("error", err.Error()).Warn("malformed push notification dropped")
		return
	}
	if err := s.HandleNotification(ctx, n); err != nil {
		logger.WithField("error", err.Error()).Error("push notification handling failed")
	}
}

// seen records the history id and reports whether it was already processed.
// History ids are monotonic per mailbox, so anything at or below the high
// water mark is a redelivery.
func (s *Service) seen(workspaceID string, historyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastHistoryID[workspaceID]; ok && historyID <= last {
		return true
	}
	s.lastHistoryID[workspaceID] = historyID
	return false
}
