// Package handlers provides HTTP handler implementations for the public API.
//
// This file implements the gateway webhook endpoint. The gateway POSTs one
// update per request and accepts an optional method call in the response
// body, which saves a round trip over invoking the API separately. Responses
// are shaped as {"method": "<name>", ...encoded fields} or {} when there is
// nothing to execute.
package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avetisov/tg-miniapp-backend/internal/http/middleware"
	"github.com/avetisov/tg-miniapp-backend/internal/telegram"
)

// webhookSecretHeader authenticates the gateway; the value is configured at
// webhook registration time and echoed on every delivery.
const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// updateDispatcher routes one update to at most one reply method call.
// *bot.Dispatcher satisfies it.
type updateDispatcher interface {
	Dispatch(ctx context.Context, u *telegram.Update) (*telegram.Request, error)
}

// WebhookHandler terminates gateway deliveries.
type WebhookHandler struct {
	Secret     string
	Dispatcher updateDispatcher
	Encoder    *telegram.Encoder
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(secret string, d updateDispatcher, enc *telegram.Encoder) *WebhookHandler {
	return &WebhookHandler{Secret: secret, Dispatcher: d, Encoder: enc}
}

// Receive handles POST /api/v1/telegram.
//
// Flow: constant-time secret check (401 on mismatch, before any parsing),
// decode the update, dispatch, shape the reply. A dispatch error yields a
// 500 so the gateway redelivers; everything else is a 200 acknowledgement.
func (h *WebhookHandler) Receive(c *gin.Context) {
	got := c.GetHeader(webhookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "bad webhook secret")
		return
	}

	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed update")
		return
	}

	req, err := h.Dispatcher.Dispatch(c.Request.Context(), &update)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "update processing failed")
		return
	}
	if req == nil {
		ok(c, http.StatusOK, gin.H{})
		return
	}

	// Encode the reply into the response body. Binary attachments cannot
	// travel this way (the body is a bare JSON object, not multipart); they
	// are dropped and the call goes out without them.
	files := make(map[string]telegram.InputFile)
	body := gin.H{"method": req.Method}
	for k, v := range h.Encoder.EncodeFields(req.Fields, files) {
		body[k] = v
	}
	if len(files) > 0 {
		middleware.LoggerFrom(c).Debug().
			Str("method", req.Method).
			Int("attachments", len(files)).
			Msg("attachments dropped from webhook reply")
	}
	ok(c, http.StatusOK, body)
}
