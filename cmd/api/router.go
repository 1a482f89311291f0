package api

import (
	"net/http"

	ingestDelivery "inboxpilot-backend/internal/ingestion/delivery"
	pipeDelivery "inboxpilot-backend/internal/pipeline/delivery"
	triageDelivery "inboxpilot-backend/internal/triage/delivery"
	"inboxpilot-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, pipelineHandler *pipeDelivery.PipelineHandler, ingestionHandler *ingestDelivery.IngestionHandler, triageHandler *triageDelivery.TriageHandler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Provider push deliveries. Providers cannot send service tokens, so
		// these stay open; the handlers validate payloads themselves.
		webhooks := api.Group("/webhooks")
		{
			webhooks.GET("/mailbox", ingestionHandler.ValidateWebhook)
			webhooks.POST("/mailbox", ingestionHandler.ReceiveWebhook)
		}

		pipeline := api.Group("/pipeline")
		{
			// The worker drain endpoint is hit by the cron scheduler, which
			// carries the shared secret instead of a JWT.
			pipeline.POST("/worker", pipeDelivery.WorkerSecretMiddleware(cfg.WorkerSecret), pipelineHandler.RunWorker)

			// Trigger and ops routes (service token)
			svc := pipeline.Group("")
			svc.Use(pipeDelivery.ServiceAuthMiddleware(cfg.JWTSecret))
			{
				svc.POST("/import", ingestionHandler.TriggerImport)
				svc.POST("/import/cancel", ingestionHandler.CancelImport)
				svc.POST("/import/resume", ingestionHandler.ResumeImport)
				svc.GET("/import/progress", ingestionHandler.Progress)
				svc.POST("/classify", triageHandler.Classify)
				svc.POST("/backfill", triageHandler.Backfill)
				svc.GET("/queues", pipelineHandler.QueueDepths)
				svc.POST("/deadletter/purge", pipelineHandler.PurgeDeadletter)
				svc.GET("/incidents", pipelineHandler.ListIncidents)
				svc.GET("/audit", pipelineHandler.ListAudit)
			}
		}

		// Conversation read models (service token)
		conversations := api.Group("/conversations")
		conversations.Use(pipeDelivery.ServiceAuthMiddleware(cfg.JWTSecret))
		{
			conversations.GET("", triageHandler.ListConversations)
			conversations.GET("/buckets", triageHandler.BucketCounts)
		}
	}
}
