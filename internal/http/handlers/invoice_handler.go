// Package handlers provides HTTP handler implementations for the public API.
//
// This file implements the mini-app facing endpoints: invoice issuance,
// payment status polling, the profile lookup, and the transactions view.
// All sit behind LaunchAuth except CheckStatus, which needs to keep working
// while the payment sheet covers the mini-app and its launch context.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avetisov/tg-miniapp-backend/internal/domain"
	"github.com/avetisov/tg-miniapp-backend/internal/http/middleware"
	"github.com/avetisov/tg-miniapp-backend/internal/services"
	"github.com/avetisov/tg-miniapp-backend/internal/telegram"
)

// invoiceIssuer is the invoice service surface this handler needs.
type invoiceIssuer interface {
	Create(ctx context.Context, telegramID int64, in services.InvoiceInput) (*services.Invoice, error)
	CheckStatus(ctx context.Context, correlationID string) (bool, error)
	History(ctx context.Context, telegramID int64) ([]domain.Transaction, error)
}

// identityReader mirrors and fetches launch identities.
type identityReader interface {
	UpsertLaunch(ctx context.Context, launch *telegram.AuthenticatedLaunch) error
	Get(ctx context.Context, telegramID int64) (*domain.User, error)
}

// InvoiceHandler serves the invoice and profile endpoints.
type InvoiceHandler struct {
	Invoices invoiceIssuer
	Users    identityReader
}

// NewInvoiceHandler constructs an InvoiceHandler.
func NewInvoiceHandler(invoices invoiceIssuer, users identityReader) *InvoiceHandler {
	return &InvoiceHandler{Invoices: invoices, Users: users}
}

// createInvoiceRequest is the POST /api/v1/invoice body.
type createInvoiceRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceLabel  string `json:"price_label"`
	PriceAmount int64  `json:"price_amount"`
}

// Create handles POST /api/v1/invoice. It mirrors the verified launch
// identity into the ledger, issues an invoice link for it, and returns
// {"data": <link>, "id": <correlation id>} for the client's polling loop.
func (h *InvoiceHandler) Create(c *gin.Context) {
	launch := middleware.LaunchFrom(c)
	if launch == nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "launch data missing")
		return
	}

	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed request body")
		return
	}

	// Identity mirroring rides along on every authenticated call; a failure
	// here must not block the purchase.
	if err := h.Users.UpsertLaunch(c.Request.Context(), launch); err != nil {
		middleware.LoggerFrom(c).Error().Err(err).
			Int64("telegram_id", launch.TelegramID).
			Msg("failed to mirror launch identity")
	}

	inv, err := h.Invoices.Create(c.Request.Context(), launch.TelegramID, services.InvoiceInput{
		Title:       req.Title,
		Description: req.Description,
		PriceLabel:  req.PriceLabel,
		Amount:      req.PriceAmount,
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrEmptyTitle), errors.Is(err, services.ErrInvalidAmount):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	default:
		var apiErr *telegram.APIError
		if errors.As(err, &apiErr) {
			middleware.LoggerFrom(c).Error().Err(err).Msg("gateway refused invoice")
			fail(c, http.StatusBadGateway, ErrCodeInvoiceFailed, "gateway refused the invoice")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not create invoice")
		return
	}

	ok(c, http.StatusOK, gin.H{"data": inv.Link, "id": inv.CorrelationID})
}

// CheckStatus handles POST /api/v1/check_status?unique_id=...; the response
// is {"paid": bool}.
func (h *InvoiceHandler) CheckStatus(c *gin.Context) {
	uniqueID := c.Query("unique_id")
	if uniqueID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unique_id is required")
		return
	}

	paid, err := h.Invoices.CheckStatus(c.Request.Context(), uniqueID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not check status")
		return
	}
	ok(c, http.StatusOK, gin.H{"paid": paid})
}

// Transactions handles GET /api/v1/transactions. It returns the caller's
// settled payments, newest first, as {"transactions": [...]}.
func (h *InvoiceHandler) Transactions(c *gin.Context) {
	launch := middleware.LaunchFrom(c)
	if launch == nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "launch data missing")
		return
	}

	rows, err := h.Invoices.History(c.Request.Context(), launch.TelegramID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load transactions")
		return
	}
	ok(c, http.StatusOK, gin.H{"transactions": rows})
}

// Me handles GET /api/v1/me. The launch identity is mirrored first, so a
// first-time caller gets a row instead of a 404.
func (h *InvoiceHandler) Me(c *gin.Context) {
	launch := middleware.LaunchFrom(c)
	if launch == nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "launch data missing")
		return
	}

	if err := h.Users.UpsertLaunch(c.Request.Context(), launch); err != nil {
		middleware.LoggerFrom(c).Error().Err(err).
			Int64("telegram_id", launch.TelegramID).
			Msg("failed to mirror launch identity")
	}

	user, err := h.Users.Get(c.Request.Context(), launch.TelegramID)
	switch {
	case err == nil:
		ok(c, http.StatusOK, user)
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load user")
	}
}
