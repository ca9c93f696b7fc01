package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/avetisov/tg-miniapp-backend/internal/config"
	"github.com/avetisov/tg-miniapp-backend/internal/domain"
	"github.com/avetisov/tg-miniapp-backend/internal/telegram"
)

const webhookSecret = "hook-secret"

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:routerdb%d?mode=memory&cache=shared", time.Now().UnixNano())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Transaction{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeGateway backs the outbound bot transport with a canned Bot API.
func fakeGateway(t *testing.T) *telegram.Bot {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/createInvoiceLink") {
			fmt.Fprint(w, `{"ok":true,"result":"https://t.me/$fake-invoice"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}))
	t.Cleanup(srv.Close)
	return telegram.NewBot("12345:TEST", telegram.WithAPIURL(srv.URL), telegram.WithHTTPClient(srv.Client()))
}

// launchBlob fabricates launch data accepted when signature checks are off.
func launchBlob(telegramID int64) string {
	q := url.Values{}
	q.Set("auth_date", fmt.Sprintf("%d", time.Now().Unix()))
	q.Set("hash", "unchecked")
	q.Set("user", fmt.Sprintf(`{"id":%d,"first_name":"Ann","language_code":"en"}`, telegramID))
	return q.Encode()
}

func newTestRouter(t *testing.T, tweaks ...func(*config.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     1000,
		RateBurst:   1000,
		FrontendURL: "https://app.example.com",
		Security:    config.SecurityConfig{},
		Telegram:    config.TelegramConfig{WebhookSecret: webhookSecret},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
	for _, tweak := range tweaks {
		tweak(&cfg)
	}

	validator := telegram.NewWebAppValidator("12345:TEST", false)
	RegisterRoutes(r, newTestDB(t), fakeGateway(t), validator, cfg, zerolog.Nop())
	return r
}

func TestRouter_HealthMetricsFallbacks(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// Unknown route -> standardized envelope
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "not_found") {
		t.Fatalf("GET /nope: code=%d body=%s", w.Code, w.Body.String())
	}

	// Wrong method -> method_not_allowed
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /health = %d", w.Code)
	}
}

func TestRouter_WebhookSecretGate(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telegram", strings.NewReader(`{"update_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad secret accepted: %d", w.Code)
	}
}

func TestRouter_StartCommandReply(t *testing.T) {
	r := newTestRouter(t)

	update := `{"update_id":1,"message":{"message_id":1,"from":{"id":42,"first_name":"Ann"},"chat":{"id":42,"type":"private"},"text":"/start"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telegram", strings.NewReader(update))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", webhookSecret)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("webhook = %d body = %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["method"] != "sendMessage" || body["chat_id"] != "42" {
		t.Fatalf("reply = %v", body)
	}
	if !strings.Contains(body["reply_markup"], "https://app.example.com") {
		t.Fatalf("web-app button missing: %v", body)
	}
}

// TestRouter_PurchaseLoop walks the whole flow the mini-app drives: issue an
// invoice, poll unpaid, deliver the payment notification, poll paid, and
// finally read the mirrored profile and the transactions view.
func TestRouter_PurchaseLoop(t *testing.T) {
	r := newTestRouter(t)
	blob := launchBlob(42)

	// 1) Issue an invoice.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoice",
		strings.NewReader(`{"title":"Gold pack","price_amount":100}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", blob)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("invoice = %d body = %s", w.Code, w.Body.String())
	}
	var inv struct {
		Data string `json:"data"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &inv); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}
	if inv.Data != "https://t.me/$fake-invoice" || len(inv.ID) != 8 {
		t.Fatalf("invoice = %+v", inv)
	}

	// 2) Not paid yet.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/check_status?unique_id="+inv.ID, nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"paid":false`) {
		t.Fatalf("premature paid: %d %s", w.Code, w.Body.String())
	}

	// 3) Gateway delivers the payment notification.
	update := fmt.Sprintf(`{"update_id":2,"message":{"message_id":2,"from":{"id":42,"first_name":"Ann"},"chat":{"id":42,"type":"private"},"successful_payment":{"currency":"XTR","total_amount":100,"invoice_payload":"42;%s","telegram_payment_charge_id":"ch_1","provider_payment_charge_id":"pr_1"}}}`, inv.ID)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/telegram", strings.NewReader(update))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", webhookSecret)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("payment webhook = %d body = %s", w.Code, w.Body.String())
	}

	// 4) Paid now.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/check_status?unique_id="+inv.ID, nil))
	if !strings.Contains(w.Body.String(), `"paid":true`) {
		t.Fatalf("payment not visible: %s", w.Body.String())
	}

	// 5) Profile was mirrored along the way.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("token", blob)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"telegram_id":42`) {
		t.Fatalf("me = %d %s", w.Code, w.Body.String())
	}

	// 6) The settled payment shows in the transactions view.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	req.Header.Set("token", blob)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), inv.ID) {
		t.Fatalf("transactions = %d %s", w.Code, w.Body.String())
	}
}

// The limiter runs after LaunchAuth, so two identities behind one NAT get
// separate buckets and replaying one identity is what trips the limit.
func TestRouter_LimiterKeysOnLaunchIdentity(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.RateRPS = 0.0001
		cfg.RateBurst = 1
	})

	me := func(blob string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		req.Header.Set("token", blob)
		r.ServeHTTP(w, req)
		return w.Code
	}

	first, second := launchBlob(41), launchBlob(42)
	if code := me(first); code != http.StatusOK {
		t.Fatalf("first identity = %d", code)
	}
	if code := me(second); code != http.StatusOK {
		t.Fatalf("second identity hit the first one's bucket: %d", code)
	}
	if code := me(first); code != http.StatusTooManyRequests {
		t.Fatalf("replayed identity not limited: %d", code)
	}
}

// Gateway deliveries share Telegram's egress IPs; the webhook route must not
// be throttled or payment notifications get 429s.
func TestRouter_WebhookNotRateLimited(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.RateRPS = 0.0001
		cfg.RateBurst = 1
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/telegram", strings.NewReader(`{"update_id":1}`))
		req.RemoteAddr = "10.0.0.1:1000"
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", webhookSecret)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d throttled: %d", i, w.Code)
		}
	}
}

func TestRouter_InvoiceRequiresLaunchAuth(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoice",
		strings.NewReader(`{"title":"Pack","price_amount":10}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated invoice accepted: %d", w.Code)
	}
}
