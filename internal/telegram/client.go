package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// defaultAPIURL is the production Bot API endpoint.
const defaultAPIURL = "https://api.telegram.org"

// APIError is a gateway-side rejection of an outbound method call.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int // seconds; > 0 only on flood-control rejections
}

// Error implements error.
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s failed: %s (%d)", e.Method, e.Description, e.Code)
}

// apiResponse is the Bot API envelope wrapping every method result.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Bot is the outbound transport to the bot gateway. It is an explicitly
// constructed service object: build one at startup and inject it wherever
// outbound calls are made. Safe for concurrent use.
type Bot struct {
	token    string
	apiURL   string
	httpc    *http.Client
	enc      *Encoder
	defaults map[string]any
	log      zerolog.Logger
}

// BotOption customizes Bot construction.
type BotOption func(*Bot)

// WithAPIURL overrides the Bot API base URL (tests, local bot-api servers).
func WithAPIURL(u string) BotOption {
	return func(b *Bot) { b.apiURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) BotOption {
	return func(b *Bot) { b.httpc = c }
}

// WithDefault registers a transport-level default resolved by the encoder's
// Default placeholder (e.g. WithDefault("parse_mode", ParseModeHTML)).
func WithDefault(name string, value any) BotOption {
	return func(b *Bot) { b.defaults[name] = value }
}

// WithLogger attaches a logger; a disabled logger is used otherwise.
func WithLogger(l zerolog.Logger) BotOption {
	return func(b *Bot) { b.log = l }
}

// NewBot constructs the gateway transport for the given bot token.
func NewBot(token string, opts ...BotOption) *Bot {
	b := &Bot{
		token:    token,
		apiURL:   defaultAPIURL,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		defaults: map[string]any{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.enc = NewEncoder(b.defaults)
	return b
}

// Encoder returns the transport value encoder sharing this bot's defaults.
// The webhook response-shaping path uses it so replies and direct calls
// encode identically.
func (b *Bot) Encoder() *Encoder { return b.enc }

// Do performs one Bot API method call. Fields are encoded to transport form
// and sent as a multipart form together with any attachments the encoder
// side-channelled. The raw result payload is returned on success; gateway
// rejections surface as *APIError.
func (b *Bot) Do(ctx context.Context, method string, fields map[string]any) (json.RawMessage, error) {
	files := map[string]InputFile{}
	encoded := b.enc.EncodeFields(fields, files)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range encoded {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("telegram: encode %s field %q: %w", method, k, err)
		}
	}
	for token, f := range files {
		part, err := w.CreateFormFile(token, f.Name)
		if err != nil {
			return nil, fmt.Errorf("telegram: attach %q: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("telegram: attach %q: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/bot%s/%s", b.apiURL, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := b.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s: read response: %w", method, err)
	}

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("telegram: %s: decode response: %w", method, err)
	}
	if !env.OK {
		apiErr := &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return nil, apiErr
	}
	return env.Result, nil
}

// CreateInvoiceLink creates a payment link for a Stars invoice and returns
// the URL the mini-app opens to start the payment flow.
func (b *Bot) CreateInvoiceLink(ctx context.Context, title, description, payload, currency string, prices []LabeledPrice) (string, error) {
	items := make([]any, 0, len(prices))
	for _, p := range prices {
		items = append(items, p)
	}
	res, err := b.Do(ctx, "createInvoiceLink", map[string]any{
		"title":       title,
		"description": description,
		"payload":     payload,
		"currency":    currency,
		"prices":      items,
	})
	if err != nil {
		return "", err
	}
	var link string
	if err := json.Unmarshal(res, &link); err != nil {
		return "", fmt.Errorf("telegram: createInvoiceLink: decode result: %w", err)
	}
	return link, nil
}

// AnswerPreCheckoutQuery confirms (or rejects) a pre-checkout query.
func (b *Bot) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool) error {
	_, err := b.Do(ctx, "answerPreCheckoutQuery", map[string]any{
		"pre_checkout_query_id": queryID,
		"ok":                    ok,
	})
	return err
}

// SendMessage sends a text message; extra merges additional fields such as
// reply_markup or parse_mode into the call.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, extra map[string]any) error {
	fields := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	for k, v := range extra {
		fields[k] = v
	}
	_, err := b.Do(ctx, "sendMessage", fields)
	return err
}

// SetWebhook registers url as the gateway's webhook target, protected by the
// shared secret token. Flood-control rejections are retried after the delay
// the gateway asks for, bounded by the context.
func (b *Bot) SetWebhook(ctx context.Context, url, secret string) error {
	for {
		_, err := b.Do(ctx, "setWebhook", map[string]any{
			"url":             url,
			"secret_token":    secret,
			"max_connections": 100,
		})
		if err == nil {
			b.log.Info().Str("url", url).Msg("webhook registered")
			return nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests {
			return err
		}

		b.log.Info().Int("retry_after", apiErr.RetryAfter).Msg("webhook registration throttled, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(apiErr.RetryAfter) * time.Second):
		}
	}
}
