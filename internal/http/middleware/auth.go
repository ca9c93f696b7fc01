// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements launch authentication for mini-app routes. The
// browser client forwards the signed launch blob its embedding platform
// handed it in a "token" header; LaunchAuth verifies the signature, decodes
// the identity, and stores it in the Gin context for handlers.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avetisov/tg-miniapp-backend/internal/telegram"
)

const (
	// launchHeader carries the URL-encoded signed launch data.
	launchHeader = "token"
	// launchKey is the Gin context key for the verified identity.
	launchKey = "launch"
	// telegramIDKey is the Gin context key for the verified Telegram id.
	telegramIDKey = "telegramID"
)

// launchValidator is the slice of the launch verifier this middleware needs.
// *telegram.WebAppValidator satisfies it.
type launchValidator interface {
	Authenticate(raw string) (*telegram.AuthenticatedLaunch, error)
}

// LaunchAuth returns a middleware that requires a verified launch blob.
//
// Rejections: 412 when the blob parses but its signature does not match
// (client state is stale and must be refreshed by relaunching), 401 for
// everything else (missing header, malformed blob, expired launch).
func LaunchAuth(v launchValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(launchHeader)
		if raw == "" {
			abortAuth(c, http.StatusUnauthorized, "launch data missing")
			return
		}

		launch, err := v.Authenticate(raw)
		if err != nil {
			if errors.Is(err, telegram.ErrSignatureMismatch) {
				abortAuth(c, http.StatusPreconditionFailed, "launch data signature mismatch")
				return
			}
			abortAuth(c, http.StatusUnauthorized, "launch data rejected")
			return
		}

		c.Set(launchKey, launch)
		c.Set(telegramIDKey, launch.TelegramID)
		c.Next()
	}
}

// LaunchFrom returns the verified launch identity set by LaunchAuth, or nil
// when the request did not pass through it.
func LaunchFrom(c *gin.Context) *telegram.AuthenticatedLaunch {
	if v, ok := c.Get(launchKey); ok {
		if l, ok := v.(*telegram.AuthenticatedLaunch); ok {
			return l
		}
	}
	return nil
}

func abortAuth(c *gin.Context, status int, msg string) {
	rid, _ := c.Get(requestIDKey)
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": asString(rid),
		"code":       "unauthenticated",
		"message":    msg,
	})
}
