// Package services – PaymentService
//
// This file implements the PaymentService, which reconciles payment-completed
// notifications against the ledger. By the time a notification arrives the
// gateway has already charged the user, so persistence failures here must
// never propagate into the webhook acknowledgement path: callers log and
// acknowledge regardless (see bot.Dispatcher).
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/avetisov/tg-miniapp-backend/internal/domain"
	"github.com/avetisov/tg-miniapp-backend/internal/repo"
	"github.com/avetisov/tg-miniapp-backend/internal/telegram"
)

// PaymentService records completed payments.
type PaymentService struct {
	DB *gorm.DB
}

// RecordPayment writes one ledger row for a successful_payment notification.
//
// The payer is resolved from the invoice payload ("{telegram_id};{unique_id}",
// or the legacy bare "{telegram_id}" form), falling back to the message
// sender when the payload is unusable. Replayed correlation ids return
// ErrDuplicatePayment without writing.
func (s *PaymentService) RecordPayment(ctx context.Context, from *telegram.User, p *telegram.SuccessfulPayment) error {
	telegramID, uniqueID := parseInvoicePayload(p.InvoicePayload)
	if telegramID == 0 {
		if from == nil {
			paymentsRecorded.WithLabelValues("error").Inc()
			return ErrBadPayload
		}
		telegramID = from.ID
	}

	tx := &domain.Transaction{
		TelegramID:             telegramID,
		Currency:               p.Currency,
		TotalAmount:            p.TotalAmount,
		InvoicePayload:         p.InvoicePayload,
		GatewayChargeID:        p.TelegramPaymentChargeID,
		ProviderChargeID:       p.ProviderPaymentChargeID,
		SubscriptionExpiration: p.SubscriptionExpirationDate,
		IsRecurring:            p.IsRecurring,
		IsFirstRecurring:       p.IsFirstRecurring,
		ShippingOptionID:       p.ShippingOptionID,
		OrderInfo:              marshalOrderInfo(p.OrderInfo),
		UniqueID:               uniqueID,
	}

	switch err := repo.CreateTransaction(ctx, s.DB, tx); {
	case err == nil:
		paymentsRecorded.WithLabelValues("recorded").Inc()
		return nil
	case errors.Is(err, repo.ErrDuplicate):
		paymentsRecorded.WithLabelValues("duplicate").Inc()
		return ErrDuplicatePayment
	default:
		paymentsRecorded.WithLabelValues("error").Inc()
		return err
	}
}

// parseInvoicePayload splits "{telegram_id};{unique_id}". The legacy form
// carries only the telegram id. A zero first return means unattributable.
func parseInvoicePayload(payload string) (int64, string) {
	head, uniqueID, _ := strings.Cut(payload, ";")
	telegramID, err := strconv.ParseInt(strings.TrimSpace(head), 10, 64)
	if err != nil {
		return 0, uniqueID
	}
	return telegramID, uniqueID
}

// marshalOrderInfo flattens the optional order metadata to a JSON string
// column; nil stays nil.
func marshalOrderInfo(oi *telegram.OrderInfo) *string {
	if oi == nil {
		return nil
	}
	raw, err := json.Marshal(oi)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}
