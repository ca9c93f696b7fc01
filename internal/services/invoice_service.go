// Package services – InvoiceService
//
// This file implements the InvoiceService, which issues Stars invoice links
// through the bot gateway and answers status polls against the ledger.
//
// The correlation id is the only link between an issued invoice and its
// eventual payment notification: it is embedded into the outbound invoice
// payload as "{telegram_id};{id}", round-trips through the gateway, and
// comes back inside the successful_payment message. It has no storage of its
// own until a Transaction row materializes it.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/avetisov/tg-miniapp-backend/internal/domain"
	"github.com/avetisov/tg-miniapp-backend/internal/repo"
	"github.com/avetisov/tg-miniapp-backend/internal/telegram"
)

// InvoiceLinkCreator is the slice of the gateway transport this service
// needs. *telegram.Bot satisfies it.
type InvoiceLinkCreator interface {
	CreateInvoiceLink(ctx context.Context, title, description, payload, currency string, prices []telegram.LabeledPrice) (string, error)
}

// Invoice is the result of issuing an invoice link.
type Invoice struct {
	Link          string
	CorrelationID string
}

// InvoiceInput is the caller-supplied invoice content. Description and
// PriceLabel fall back to service defaults when blank.
type InvoiceInput struct {
	Title       string
	Description string
	PriceLabel  string
	Amount      int64 // minor units (whole Stars for XTR)
}

// InvoiceService issues invoice links and answers status polls.
type InvoiceService struct {
	DB      *gorm.DB
	Gateway InvoiceLinkCreator

	// DefaultDescription and DefaultPriceLabel fill blank input fields.
	DefaultDescription string
	DefaultPriceLabel  string
}

// NewInvoiceService constructs an InvoiceService with stock defaults.
func NewInvoiceService(db *gorm.DB, gw InvoiceLinkCreator) *InvoiceService {
	return &InvoiceService{
		DB:                 db,
		Gateway:            gw,
		DefaultDescription: "Telegram Stars purchase",
		DefaultPriceLabel:  "Telegram Stars purchase",
	}
}

// Create validates in, issues an invoice link for the given identity, and
// returns the link together with the fresh correlation id. The id is handed
// to the caller unmodified; polling CheckStatus with it reports whether the
// payment notification has come back.
func (s *InvoiceService) Create(ctx context.Context, telegramID int64, in InvoiceInput) (*Invoice, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrEmptyTitle
	}
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if in.Description == "" {
		in.Description = s.DefaultDescription
	}
	if in.PriceLabel == "" {
		in.PriceLabel = s.DefaultPriceLabel
	}

	id := newCorrelationID()
	payload := fmt.Sprintf("%d;%s", telegramID, id)

	link, err := s.Gateway.CreateInvoiceLink(ctx, in.Title, in.Description, payload, telegram.CurrencyXTR,
		[]telegram.LabeledPrice{{Label: in.PriceLabel, Amount: in.Amount}})
	if err != nil {
		return nil, err
	}

	invoicesCreated.Inc()
	return &Invoice{Link: link, CorrelationID: id}, nil
}

// CheckStatus reports whether a transaction row exists for the correlation
// id. This backs the mini-app's polling loop; there is no push channel.
func (s *InvoiceService) CheckStatus(ctx context.Context, correlationID string) (bool, error) {
	return repo.IsPaid(ctx, s.DB, correlationID)
}

// History returns the user's settled transactions, newest first.
func (s *InvoiceService) History(ctx context.Context, telegramID int64) ([]domain.Transaction, error) {
	return repo.ListTransactions(ctx, s.DB, telegramID)
}

// newCorrelationID returns a short random hex token. Collisions are
// negligible at this length but not impossible; a collision surfaces as a
// refused duplicate insert, never as corrupted state.
func newCorrelationID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
