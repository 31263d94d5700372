// Package front registers the public HTTP surface: webhook intake, liveness,
// and the polling fallback.
package front

import (
	"github.com/allmovies/ultrapro/internal/dispatch"
	handlers "github.com/allmovies/ultrapro/internal/http/api/front/handlers"
	"github.com/allmovies/ultrapro/internal/telegram"
	"github.com/allmovies/ultrapro/internal/webhook"

	"github.com/gin-gonic/gin"
)

// RegisterFrontRoutes registers the public routes and handlers.
func RegisterFrontRoutes(r *gin.Engine, botToken string, verifier *webhook.Verifier, dispatcher *dispatch.Dispatcher, poller *telegram.Poller) {
	if r == nil {
		return
	}

	webhookHandler := handlers.NewWebhookFrontHandler(botToken, verifier, dispatcher)
	r.POST("/webhook/:token", webhookHandler.Receive)

	healthHandler := handlers.NewHealthFrontHandler()
	r.GET("/health", healthHandler.Health)

	pollingHandler := handlers.NewPollingFrontHandler(poller)
	r.GET("/polling/start", pollingHandler.Start)
}
