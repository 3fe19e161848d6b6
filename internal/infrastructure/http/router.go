package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	CORSOrigins []string
	Logger      *slog.Logger
}

func NewRouter(h *Handlers, cfg RouterConfig) *gin.Engine {
	router := gin.New()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router.Use(
		RequestID(),
		AccessLog(cfg.Logger),
		Recovery(cfg.Logger),
		cors.New(cors.Config{
			AllowOrigins:  origins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", HeaderSignature, HeaderRequestID},
			ExposeHeaders: []string{"Content-Length", HeaderRequestID},
		}),
	)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", h.MetricsSnapshot)

	router.POST("/checkouts", h.CreateCheckout)
	router.GET("/payments/:externalId/status", h.PaymentStatus)

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/payments", h.ReceiveWebhook)
	}

	return router
}
