// Package services defines the business logic for identities, invoices, and
// payment reconciliation. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrUserNotFound indicates that no ledger row exists for the requested
	// Telegram id.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmptyTitle is returned when an invoice request carries a blank title.
	ErrEmptyTitle = errors.New("invoice title is empty")

	// ErrInvalidAmount is returned when an invoice request carries a
	// non-positive price amount.
	ErrInvalidAmount = errors.New("price amount must be positive")

	// ErrDuplicatePayment is returned when a payment notification replays a
	// correlation id that already has a ledger row. The notification is
	// still acknowledged upstream; only the second mirror row is refused.
	ErrDuplicatePayment = errors.New("payment already recorded")

	// ErrBadPayload is returned when a payment notification's invoice
	// payload cannot be attributed to a user.
	ErrBadPayload = errors.New("unparseable invoice payload")
)
