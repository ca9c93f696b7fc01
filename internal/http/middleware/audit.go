// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RequestAudit, a structured audit logger that records
// who called what with which payload, with secrets scrubbed before anything
// reaches the log stream.
//
// Design goals:
//   - Attribute requests to a Telegram identity whenever a launch blob is
//     present, without rejecting anything (authentication stays in LaunchAuth)
//   - Log JSON request bodies up to a cap, with values of sensitive keys
//     (password/token/authorization/authentication/x-api-key) masked
//   - Fully mask sensitive headers, including the launch blob itself
package middleware

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// maxAuditBodyBytes caps how much of a request body the audit log captures.
const maxAuditBodyBytes = 8 << 10

// auditSkipPaths lists endpoints polled by infrastructure; auditing every
// scrape would drown the log stream without attributing anything.
var auditSkipPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// sensitiveValueRE matches a quoted JSON value whose key contains a
// credential-bearing word. The key and separator are kept in group 1 so the
// replacement preserves the document shape.
var sensitiveValueRE = regexp.MustCompile(
	`(?i)("[^"]*(?:password|token|authorization|authentication|x-api-key)[^"]*"\s*:\s*")[^"]*"`)

// Redact masks the values of credential-bearing keys in a JSON fragment.
// {"token": "abc123"} becomes {"token": "******"}.
func Redact(s string) string {
	return sensitiveValueRE.ReplaceAllString(s, `${1}******"`)
}

// RequestAudit returns a middleware that writes one audit record per request.
//
// The record carries the correlation ID, the caller's Telegram id when the
// "token" header holds a decodable launch blob (decoded best-effort, errors
// ignored), the scrubbed JSON body, duration, and outcome status. The body is
// read and restored so downstream binding is unaffected.
func RequestAudit(v launchValidator) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization":                   {},
		"cookie":                          {},
		"set-cookie":                      {},
		launchHeader:                      {},
		"x-telegram-bot-api-secret-token": {},
	}

	return func(c *gin.Context) {
		if _, skip := auditSkipPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		// Best-effort attribution; invalid blobs simply leave the id at 0.
		var telegramID int64
		if raw := c.GetHeader(launchHeader); raw != "" && v != nil {
			if launch, err := v.Authenticate(raw); err == nil {
				telegramID = launch.TelegramID
			}
		}

		var body string
		if c.Request.Body != nil && isJSON(c.ContentType()) {
			raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAuditBodyBytes))
			if err == nil {
				c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), c.Request.Body))
				body = Redact(string(raw))
			}
		}

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "******"
				continue
			}
			safeHeaders[k] = Redact(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.
			Str("request_id", c.Writer.Header().Get(requestIDHeader)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int64("telegram_id", telegramID).
			Str("body", body).
			Interface("headers", safeHeaders).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("audit")
	}
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}
