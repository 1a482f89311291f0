package api

import (
	ingestDelivery "inboxpilot-backend/internal/ingestion/delivery"
	pipeDelivery "inboxpilot-backend/internal/pipeline/delivery"
	triageDelivery "inboxpilot-backend/internal/triage/delivery"
	"inboxpilot-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	config    *config.Config
	pipeline  *pipeDelivery.PipelineHandler
	ingestion *ingestDelivery.IngestionHandler
	triage    *triageDelivery.TriageHandler
}

func NewHandler(cfg *config.Config, pipeline *pipeDelivery.PipelineHandler, ingestion *ingestDelivery.IngestionHandler, triage *triageDelivery.TriageHandler) *Handler {
	return &Handler{
		config:    cfg,
		pipeline:  pipeline,
		ingestion: ingestion,
		triage:    triage,
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-Worker-Secret, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.config, h.pipeline, h.ingestion, h.triage)

	return r.Run(addr)
}
