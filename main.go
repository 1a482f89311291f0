package main

import (
	"context"
	"log"
	"strings"

	api "inboxpilot-backend/cmd/api"
	ingestDelivery "inboxpilot-backend/internal/ingestion/delivery"
	ingestdomain "inboxpilot-backend/internal/ingestion/domain"
	ingestRepo "inboxpilot-backend/internal/ingestion/repository"
	ingestUsecase "inboxpilot-backend/internal/ingestion/usecase"
	"inboxpilot-backend/internal/notification"
	pipeDelivery "inboxpilot-backend/internal/pipeline/delivery"
	pipedomain "inboxpilot-backend/internal/pipeline/domain"
	pipeRepo "inboxpilot-backend/internal/pipeline/repository"
	pipeUsecase "inboxpilot-backend/internal/pipeline/usecase"
	queuedomain "inboxpilot-backend/internal/queue/domain"
	queueRepo "inboxpilot-backend/internal/queue/repository"
	triageDelivery "inboxpilot-backend/internal/triage/delivery"
	triagedomain "inboxpilot-backend/internal/triage/domain"
	triageRepo "inboxpilot-backend/internal/triage/repository"
	triageUsecase "inboxpilot-backend/internal/triage/usecase"
	"inboxpilot-backend/pkg/ai"
	"inboxpilot-backend/pkg/config"
	"inboxpilot-backend/pkg/database"
	"inboxpilot-backend/pkg/logger"
	"inboxpilot-backend/pkg/mailbox"
	"inboxpilot-backend/pkg/mailbox/gmailbox"
	"inboxpilot-backend/pkg/mailbox/imapbox"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&queuedomain.QueueJob{},
		&queuedomain.ArchivedJob{},
		&pipedomain.PipelineRun{},
		&pipedomain.Incident{},
		&pipedomain.AuditEntry{},
		&ingestdomain.RawRecord{},
		&ingestdomain.ImportCursor{},
		&triagedomain.Customer{},
		&triagedomain.Conversation{},
		&triagedomain.Message{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	rawRecordRepo := ingestRepo.NewRawRecordRepository(db)
	importCursorRepo := ingestRepo.NewImportCursorRepository(db)
	auditRepo := pipeRepo.NewAuditRepository(db)
	incidentRepo := pipeRepo.NewIncidentRepository(db)
	runRepo := pipeRepo.NewPipelineRunRepository(db)
	customerRepo := triageRepo.NewCustomerRepository(db)
	conversationRepo := triageRepo.NewConversationRepository(db)
	messageRepo := triageRepo.NewMessageRepository(db)

	queueStore := queueRepo.NewStore(db,
		queuedomain.QueueMaterialize,
		queuedomain.QueueClassify,
		queuedomain.QueueImport,
		queuedomain.QueueDeadletter,
	)

	// Rule lexicon: packaged defaults with optional YAML overlay
	rules := triageUsecase.DefaultRuleSet()
	if cfg.LexiconPath != "" {
		loaded, err := triageUsecase.LoadRuleSet(cfg.LexiconPath)
		if err != nil {
			log.Fatal("Failed to load lexicon:", err)
		}
		rules = loaded
	}

	// Mailbox provider
	var provider mailbox.Provider
	switch strings.ToLower(cfg.Provider) {
	case "imap":
		provider = imapbox.NewService(cfg.IMAPHost, cfg.IMAPPort)
	default:
		provider = gmailbox.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	}

	credentials := func(workspaceID string) (mailbox.Credentials, error) {
		username := cfg.IMAPUsername
		if username == "" {
			username = cfg.OwnerEmail
		}
		return mailbox.Credentials{
			AccessToken:  cfg.GmailAccessToken,
			RefreshToken: cfg.GmailRefreshToken,
			Username:     username,
			Password:     cfg.IMAPPassword,
		}, nil
	}

	// AI triage provider (best effort: the cascade covers its absence)
	aiService, err := ai.NewTriageService(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		logger.WithField("error", err.Error()).Warn("AI provider unavailable, cascade only")
		aiService = nil
	}

	// Initialize use cases (dependency injection)
	materializer := triageUsecase.NewMaterializer(rawRecordRepo, customerRepo, conversationRepo, messageRepo, rules, cfg.OwnerIdentities())
	classifier := triageUsecase.NewClassificationService(conversationRepo, messageRepo, rules, aiService)

	scheduler := pipeUsecase.NewBackgroundScheduler(cfg.WorkerTimeBudget)

	cursorService := ingestUsecase.NewCursorService(
		importCursorRepo,
		rawRecordRepo,
		queueStore,
		provider,
		scheduler,
		credentials,
		ingestUsecase.CursorConfig{
			PageSize:           cfg.ImportPageSize,
			MaxPagesPerRun:     cfg.ImportMaxPages,
			CutoffDays:         cfg.ImportCutoffDays,
			EarlyClassifyCount: cfg.EarlyClassifyCount,
			ClassifyFanOut:     cfg.ClassifyFanOut,
			BackoffBase:        cfg.BackoffBase,
			BackoffMax:         cfg.BackoffMax,
			FetchTimeBudget:    cfg.FetchTimeBudget,
		},
	)

	// Wire the classification stage behind the cursor: each trigger drains one
	// batch, and the cursor phase flips to complete once nothing remains.
	cursorService.SetClassifyTrigger(func(ctx context.Context, workspaceID string) {
		result, err := classifier.ClassifyPending(ctx, workspaceID, 100)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"workspace_id": workspaceID,
				"error":        err.Error(),
			}).Error("classification trigger failed")
			return
		}
		if result.Remaining == 0 {
			if err := cursorService.MarkPhase(workspaceID, ingestdomain.PhaseComplete); err != nil {
				logger.WithField("error", err.Error()).Warn("phase update failed")
			}
		}
	})

	// Reclassification of updated conversations goes through the queue so it
	// survives crashes and retries like any other job.
	materializer.SetClassifyEnqueue(func(ctx context.Context, workspaceID, conversationID string) {
		payload := pipeUsecase.EncodePayload(pipeUsecase.JobPayload{
			JobType:        pipeUsecase.JobClassifyConversation,
			WorkspaceID:    workspaceID,
			ConversationID: conversationID,
		})
		if _, err := queueStore.Enqueue(ctx, queuedomain.QueueClassify, payload, 0); err != nil {
			logger.WithField("error", err.Error()).Warn("reclassify enqueue failed")
		}
	})

	worker := pipeUsecase.NewWorker(
		queueStore,
		auditRepo,
		incidentRepo,
		runRepo,
		rawRecordRepo,
		materializer.MaterializeOne,
		classifier.ClassifyOne,
		func(ctx context.Context, workspaceID, folder string) error {
			_, err := cursorService.Run(ctx, workspaceID, folder)
			return err
		},
		pipeUsecase.WorkerConfig{
			MaxAttempts: cfg.MaxJobAttempts,
			TimeBudget:  cfg.WorkerTimeBudget,
		},
	)

	// Notification service (Pub/Sub push), only when a project is configured
	var notifService *notification.Service
	if cfg.GoogleProjectID != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}

		resolver := func(emailAddress string) string {
			emailAddress = strings.ToLower(strings.TrimSpace(emailAddress))
			for _, identity := range cfg.OwnerIdentities() {
				if identity == emailAddress {
					return cfg.DefaultWorkspace
				}
			}
			return ""
		}

		notifService, err = notification.NewService(cfg.GoogleProjectID, topicName, cfg.GooglePubSubSub, cfg.GoogleCredentials, queueStore, resolver)
		if err != nil {
			logger.WithField("error", err.Error()).Error("notification service init failed")
			notifService = nil
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		logger.WithField("provider", cfg.Provider).Warn("GOOGLE_PROJECT_ID not configured, push notifications disabled")
	}

	// Initialize HTTP handlers
	pipelineHandler := pipeDelivery.NewPipelineHandler(worker, queueStore, auditRepo, incidentRepo)
	ingestionHandler := ingestDelivery.NewIngestionHandler(cursorService, notifService)
	triageHandler := triageDelivery.NewTriageHandler(classifier, conversationRepo)

	handler := api.NewHandler(cfg, pipelineHandler, ingestionHandler, triageHandler)

	logger.WithField("port", cfg.Port).Info("server starting")
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
