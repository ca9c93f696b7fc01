// Package bot routes inbound gateway updates to the handlers this
// application cares about: the /start command, the pre-checkout
// confirmation, and the payment-completed notification. Everything else is
// acknowledged and dropped.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/avetisov/tg-miniapp-backend/internal/services"
	"github.com/avetisov/tg-miniapp-backend/internal/telegram"
)

// identityStore mirrors update senders into the ledger.
type identityStore interface {
	UpsertSender(ctx context.Context, from *telegram.User) error
}

// paymentRecorder persists payment-completed notifications.
type paymentRecorder interface {
	RecordPayment(ctx context.Context, from *telegram.User, p *telegram.SuccessfulPayment) error
}

// Dispatcher turns one inbound update into at most one outbound method call.
type Dispatcher struct {
	Identities identityStore
	Payments   paymentRecorder

	// FrontendURL is the mini-app address wired into the /start button.
	FrontendURL string
	// WelcomeText is the /start reply body.
	WelcomeText string
	// OpenButtonText labels the mini-app button.
	OpenButtonText string

	Log zerolog.Logger
}

// NewDispatcher constructs a Dispatcher with stock reply texts.
func NewDispatcher(identities identityStore, payments paymentRecorder, frontendURL string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Identities:     identities,
		Payments:       payments,
		FrontendURL:    frontendURL,
		WelcomeText:    "Welcome! Tap the button below to open the app.",
		OpenButtonText: "Open app",
		Log:            log,
	}
}

// Dispatch handles one update and returns the method call to execute in
// reply, or nil when the update needs no outbound call. A non-nil error
// means the update could not be acknowledged and should be retried by the
// gateway; payment persistence failures are deliberately NOT such errors,
// because the user has already been charged and a retry loop would not
// refund them.
func (d *Dispatcher) Dispatch(ctx context.Context, u *telegram.Update) (*telegram.Request, error) {
	switch {
	case u.PreCheckoutQuery != nil:
		return d.onPreCheckout(u.PreCheckoutQuery), nil
	case u.Message != nil && u.Message.SuccessfulPayment != nil:
		d.onPaymentCompleted(ctx, u.Message)
		return nil, nil
	case u.Message != nil && isStartCommand(u.Message.Text):
		return d.onStart(ctx, u.Message), nil
	default:
		d.Log.Debug().Int64("update_id", u.UpdateID).Msg("unhandled update kind")
		return nil, nil
	}
}

// onStart mirrors the sender and replies with the mini-app launch button.
func (d *Dispatcher) onStart(ctx context.Context, m *telegram.Message) *telegram.Request {
	if m.From != nil {
		if err := d.Identities.UpsertSender(ctx, m.From); err != nil {
			// The greeting still goes out; the mirror row catches up on
			// the next launch.
			d.Log.Error().Err(err).Int64("telegram_id", m.From.ID).Msg("failed to mirror /start sender")
		}
	}
	if m.Chat == nil {
		return nil
	}
	markup := telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: d.OpenButtonText, WebApp: &telegram.WebAppInfo{URL: d.FrontendURL}},
		}},
	}
	return telegram.NewRequest("sendMessage", map[string]any{
		"chat_id":      m.Chat.ID,
		"text":         d.WelcomeText,
		"parse_mode":   telegram.Default("parse_mode"),
		"reply_markup": markup,
	})
}

// onPreCheckout confirms the charge. Invoices are issued by this application
// only for goods it can always deliver, so the answer is unconditionally ok;
// the 10-second answer deadline leaves no room for slow checks anyway.
func (d *Dispatcher) onPreCheckout(q *telegram.PreCheckoutQuery) *telegram.Request {
	return telegram.NewRequest("answerPreCheckoutQuery", map[string]any{
		"pre_checkout_query_id": q.ID,
		"ok":                    true,
	})
}

// onPaymentCompleted records the settled payment. Failures are logged with
// the charge id so the row can be reconstructed by hand, then swallowed: the
// update must be acknowledged regardless.
func (d *Dispatcher) onPaymentCompleted(ctx context.Context, m *telegram.Message) {
	p := m.SuccessfulPayment
	err := d.Payments.RecordPayment(ctx, m.From, p)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrDuplicatePayment):
		d.Log.Warn().
			Str("charge_id", p.TelegramPaymentChargeID).
			Str("payload", p.InvoicePayload).
			Msg("payment notification replayed, row already present")
	default:
		d.Log.Error().Err(err).
			Str("charge_id", p.TelegramPaymentChargeID).
			Str("payload", p.InvoicePayload).
			Int64("amount", p.TotalAmount).
			Str("currency", p.Currency).
			Msg("failed to record settled payment")
	}
}

func isStartCommand(text string) bool {
	return text == "/start" || strings.HasPrefix(text, "/start ") || strings.HasPrefix(text, "/start@")
}
