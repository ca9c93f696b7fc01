// Package telegram implements the boundary with the Telegram Bot API: a
// typed subset of the wire objects, the transport value encoder, the signed
// mini-app launch-data validator, and an HTTP client for outbound method
// calls. Only the objects this application actually sends or receives are
// modelled; see https://core.telegram.org/bots/api for the full surface.
package telegram

// Request is a single outbound Bot API method invocation: the method name
// plus its raw field values. Fields hold in-memory values (strings, numbers,
// API objects, InputFile attachments, Default placeholders); they are turned
// into transport form by Encoder at the moment of sending or of shaping a
// webhook reply.
type Request struct {
	Method string
	Fields map[string]any
}

// NewRequest constructs an outbound method invocation.
func NewRequest(method string, fields map[string]any) *Request {
	return &Request{Method: method, Fields: fields}
}

// Enum is implemented by enumerated wire values. The encoder unwraps an enum
// to its underlying value before encoding.
type Enum interface {
	EnumValue() any
}

// Object is implemented by nested API objects. The encoder flattens an
// object to its field mapping (nil-valued entries omitted) and recurses.
type Object interface {
	APIFields() map[string]any
}

// Default marks a field whose value must be resolved from the bot's
// transport-level defaults (e.g. parse_mode) at encode time.
type Default string

// ParseMode is the message formatting mode enum.
type ParseMode string

// EnumValue implements Enum.
func (p ParseMode) EnumValue() any { return string(p) }

const (
	ParseModeHTML       ParseMode = "HTML"
	ParseModeMarkdownV2 ParseMode = "MarkdownV2"
)

// CurrencyXTR is the Telegram Stars digital-goods currency code.
const CurrencyXTR = "XTR"

// InputFile is a binary attachment for an outbound call. The encoder
// replaces it with an attach://<token> reference and registers the raw bytes
// out-of-band under that token.
type InputFile struct {
	Name string
	Data []byte
}

// Update is an inbound update delivered by the gateway webhook. Exactly one
// of the optional fields is set per update; unmodelled update kinds simply
// decode with all of them nil.
type Update struct {
	UpdateID         int64             `json:"update_id"`
	Message          *Message          `json:"message,omitempty"`
	PreCheckoutQuery *PreCheckoutQuery `json:"pre_checkout_query,omitempty"`
}

// User is a Telegram user as it appears inside updates.
type User struct {
	ID           int64   `json:"id"`
	IsBot        bool    `json:"is_bot"`
	FirstName    string  `json:"first_name"`
	LastName     *string `json:"last_name,omitempty"`
	Username     *string `json:"username,omitempty"`
	LanguageCode *string `json:"language_code,omitempty"`
	IsPremium    *bool   `json:"is_premium,omitempty"`
}

// Chat is the conversation an inbound message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"` // "private", "group", "supergroup", "channel"
}

// Message is an inbound chat message. Text carries commands such as /start;
// SuccessfulPayment is set on the payment-completed notification.
type Message struct {
	MessageID         int64              `json:"message_id"`
	From              *User              `json:"from,omitempty"`
	Chat              *Chat              `json:"chat,omitempty"`
	Date              int64              `json:"date"`
	Text              string             `json:"text,omitempty"`
	SuccessfulPayment *SuccessfulPayment `json:"successful_payment,omitempty"`
}

// PreCheckoutQuery is the gateway's final confirmation request before it
// charges the user. It must be answered within 10 seconds.
type PreCheckoutQuery struct {
	ID             string `json:"id"`
	From           *User  `json:"from,omitempty"`
	Currency       string `json:"currency"`
	TotalAmount    int64  `json:"total_amount"`
	InvoicePayload string `json:"invoice_payload"`
}

// OrderInfo is the optional order metadata attached to a payment.
type OrderInfo struct {
	Name        *string `json:"name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Email       *string `json:"email,omitempty"`
}

// SuccessfulPayment is the payment-completed notification payload. The
// gateway has already charged the user when this arrives; it is the single
// source of truth for "money received".
type SuccessfulPayment struct {
	Currency                   string     `json:"currency"`
	TotalAmount                int64      `json:"total_amount"`
	InvoicePayload             string     `json:"invoice_payload"`
	SubscriptionExpirationDate *int64     `json:"subscription_expiration_date,omitempty"`
	IsRecurring                *bool      `json:"is_recurring,omitempty"`
	IsFirstRecurring           *bool      `json:"is_first_recurring,omitempty"`
	ShippingOptionID           *string    `json:"shipping_option_id,omitempty"`
	OrderInfo                  *OrderInfo `json:"order_info,omitempty"`
	TelegramPaymentChargeID    string     `json:"telegram_payment_charge_id"`
	ProviderPaymentChargeID    string     `json:"provider_payment_charge_id"`
}

// LabeledPrice is one line of an invoice price breakdown. Amount is in the
// smallest units of the currency (for XTR, whole Stars).
type LabeledPrice struct {
	Label  string
	Amount int64
}

// APIFields implements Object.
func (p LabeledPrice) APIFields() map[string]any {
	return map[string]any{"label": p.Label, "amount": p.Amount}
}

// WebAppInfo describes a mini-app to be opened by a keyboard button.
type WebAppInfo struct {
	URL string
}

// APIFields implements Object.
func (w WebAppInfo) APIFields() map[string]any {
	return map[string]any{"url": w.URL}
}

// InlineKeyboardButton is a single inline keyboard button. Exactly one of
// URL or WebApp should be set.
type InlineKeyboardButton struct {
	Text   string
	URL    string
	WebApp *WebAppInfo
}

// APIFields implements Object.
func (b InlineKeyboardButton) APIFields() map[string]any {
	f := map[string]any{"text": b.Text}
	if b.URL != "" {
		f["url"] = b.URL
	}
	if b.WebApp != nil {
		f["web_app"] = *b.WebApp
	}
	return f
}

// InlineKeyboardMarkup is an inline keyboard attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton
}

// APIFields implements Object.
func (m InlineKeyboardMarkup) APIFields() map[string]any {
	rows := make([]any, 0, len(m.InlineKeyboard))
	for _, row := range m.InlineKeyboard {
		cells := make([]any, 0, len(row))
		for _, b := range row {
			cells = append(cells, b)
		}
		rows = append(rows, cells)
	}
	return map[string]any{"inline_keyboard": rows}
}
