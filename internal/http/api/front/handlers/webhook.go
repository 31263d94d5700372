package handlers

import (
	"crypto/subtle"
	"errors"
	"io"
	"math"
	"net/http"

	"github.com/allmovies/ultrapro/internal/dispatch"
	"github.com/allmovies/ultrapro/internal/webhook"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// maxBodyBytes caps webhook payload reads; platform updates are small.
const maxBodyBytes = 1 << 20

// WebhookFrontHandler receives platform updates on the token path.
type WebhookFrontHandler struct {
	botToken   string
	verifier   *webhook.Verifier
	dispatcher *dispatch.Dispatcher
}

// NewWebhookFrontHandler constructs a WebhookFrontHandler.
func NewWebhookFrontHandler(botToken string, verifier *webhook.Verifier, dispatcher *dispatch.Dispatcher) *WebhookFrontHandler {
	return &WebhookFrontHandler{botToken: botToken, verifier: verifier, dispatcher: dispatcher}
}

// Receive verifies one update and hands it to the dispatcher. Throttled and
// failed-handler updates are still acknowledged with 200 so the platform does
// not redeliver them.
func (h *WebhookFrontHandler) Receive(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("token")), []byte(h.botToken)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"error": "bad token"})
		return
	}

	body, errRead := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	credential := c.GetHeader(webhook.HeaderSecretToken)
	if credential == "" {
		credential = c.Query("secret")
	}

	if errVerify := h.verifier.Verify(credential, body); errVerify != nil {
		switch {
		case errors.Is(errVerify, webhook.ErrMissingAuth):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing secret"})
		case errors.Is(errVerify, webhook.ErrBadSignature):
			c.JSON(http.StatusForbidden, gin.H{"error": "bad secret"})
		case errors.Is(errVerify, webhook.ErrMalformedBody):
			c.JSON(http.StatusOK, gin.H{"ok": false})
		default:
			log.WithError(errVerify).Warn("webhook: verification unavailable")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification unavailable"})
		}
		return
	}

	ack := h.dispatcher.Dispatch(c.Request.Context(), body)
	switch ack.Status {
	case dispatch.AckInvalid:
		c.JSON(http.StatusOK, gin.H{"ok": false})
	case dispatch.AckThrottled:
		c.JSON(http.StatusOK, gin.H{
			"ok":          true,
			"throttled":   true,
			"retry_after": int(math.Ceil(ack.RetryAfter.Seconds())),
		})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
