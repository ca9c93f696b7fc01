package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/avetisov/tg-miniapp-backend/internal/telegram"
)

// fakeGateway records the last CreateInvoiceLink call and returns a canned
// link (or a canned error).
type fakeGateway struct {
	title, description, payload, currency string
	prices                                []telegram.LabeledPrice
	calls                                 int

	link string
	err  error
}

func (f *fakeGateway) CreateInvoiceLink(_ context.Context, title, description, payload, currency string, prices []telegram.LabeledPrice) (string, error) {
	f.calls++
	f.title, f.description, f.payload, f.currency = title, description, payload, currency
	f.prices = prices
	if f.err != nil {
		return "", f.err
	}
	return f.link, nil
}

var correlationIDPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

func TestInvoiceCreate_IssuesLinkWithCorrelatedPayload(t *testing.T) {
	gw := &fakeGateway{link: "https://t.me/$abc"}
	svc := NewInvoiceService(newServiceDB(t), gw)

	inv, err := svc.Create(context.Background(), 42, InvoiceInput{
		Title:       "Gold pack",
		Description: "100 coins",
		PriceLabel:  "Gold pack",
		Amount:      100,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inv.Link != "https://t.me/$abc" {
		t.Fatalf("link = %q", inv.Link)
	}
	if !correlationIDPattern.MatchString(inv.CorrelationID) {
		t.Fatalf("correlation id %q is not 8 lowercase hex chars", inv.CorrelationID)
	}

	if gw.title != "Gold pack" || gw.description != "100 coins" {
		t.Fatalf("gateway saw title=%q description=%q", gw.title, gw.description)
	}
	if gw.currency != telegram.CurrencyXTR {
		t.Fatalf("currency = %q, want XTR", gw.currency)
	}
	if want := "42;" + inv.CorrelationID; gw.payload != want {
		t.Fatalf("payload = %q, want %q", gw.payload, want)
	}
	if len(gw.prices) != 1 || gw.prices[0].Label != "Gold pack" || gw.prices[0].Amount != 100 {
		t.Fatalf("prices = %+v", gw.prices)
	}
}

func TestInvoiceCreate_DefaultsFillBlankFields(t *testing.T) {
	gw := &fakeGateway{link: "https://t.me/$abc"}
	svc := NewInvoiceService(newServiceDB(t), gw)

	if _, err := svc.Create(context.Background(), 1, InvoiceInput{Title: "Pack", Amount: 5}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if gw.description != svc.DefaultDescription {
		t.Fatalf("description = %q, want default", gw.description)
	}
	if gw.prices[0].Label != svc.DefaultPriceLabel {
		t.Fatalf("price label = %q, want default", gw.prices[0].Label)
	}
}

func TestInvoiceCreate_Validation(t *testing.T) {
	gw := &fakeGateway{link: "x"}
	svc := NewInvoiceService(newServiceDB(t), gw)

	cases := []struct {
		name string
		in   InvoiceInput
		want error
	}{
		{"empty title", InvoiceInput{Title: "  ", Amount: 10}, ErrEmptyTitle},
		{"zero amount", InvoiceInput{Title: "Pack", Amount: 0}, ErrInvalidAmount},
		{"negative amount", InvoiceInput{Title: "Pack", Amount: -3}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), 1, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if gw.calls != 0 {
		t.Fatalf("gateway reached despite invalid input (%d calls)", gw.calls)
	}
}

func TestInvoiceCreate_GatewayErrorPropagates(t *testing.T) {
	gwErr := &telegram.APIError{Method: "createInvoiceLink", Code: 400, Description: "CURRENCY_INVALID"}
	gw := &fakeGateway{err: gwErr}
	svc := NewInvoiceService(newServiceDB(t), gw)

	_, err := svc.Create(context.Background(), 1, InvoiceInput{Title: "Pack", Amount: 10})
	var apiErr *telegram.APIError
	if !errors.As(err, &apiErr) || apiErr.Description != "CURRENCY_INVALID" {
		t.Fatalf("err = %v, want gateway APIError", err)
	}
}

// TestInvoiceLifecycle walks the issue -> unpaid -> notify -> paid path the
// mini-app sees while polling.
func TestInvoiceLifecycle(t *testing.T) {
	db := newServiceDB(t)
	gw := &fakeGateway{link: "https://t.me/$abc"}
	invoices := NewInvoiceService(db, gw)
	payments := &PaymentService{DB: db}

	inv, err := invoices.Create(context.Background(), 42, InvoiceInput{Title: "Gold pack", Amount: 100})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	paid, err := invoices.CheckStatus(context.Background(), inv.CorrelationID)
	if err != nil || paid {
		t.Fatalf("fresh invoice reported paid=%v err=%v", paid, err)
	}

	// The notification carries the payload the invoice was issued with.
	err = payments.RecordPayment(context.Background(), &telegram.User{ID: 42}, &telegram.SuccessfulPayment{
		Currency:                telegram.CurrencyXTR,
		TotalAmount:             100,
		InvoicePayload:          gw.payload,
		TelegramPaymentChargeID: "ch_1",
		ProviderPaymentChargeID: "pr_1",
	})
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	paid, err = invoices.CheckStatus(context.Background(), inv.CorrelationID)
	if err != nil || !paid {
		t.Fatalf("settled invoice reported paid=%v err=%v", paid, err)
	}

	rows, err := invoices.History(context.Background(), 42)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 1 || rows[0].UniqueID != inv.CorrelationID {
		t.Fatalf("history = %+v, want the settled row", rows)
	}
}

func TestCorrelationIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 256; i++ {
		id := newCorrelationID()
		if !correlationIDPattern.MatchString(id) {
			t.Fatalf("id %q malformed", id)
		}
		if seen[id] {
			t.Fatalf("collision after %d draws: %q", i, id)
		}
		seen[id] = true
	}
}
