// Package services – UserService
//
// This file implements the UserService, which mirrors verified Telegram
// identities into the ledger. Rows are replaced last-write-wins on every
// successful authentication or /start launch; the service never deletes.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/avetisov/tg-miniapp-backend/internal/domain"
	"github.com/avetisov/tg-miniapp-backend/internal/repo"
	"github.com/avetisov/tg-miniapp-backend/internal/telegram"
)

// UserService persists and fetches mini-app identities.
type UserService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// UpsertLaunch stores the identity decoded from a verified launch blob.
func (s *UserService) UpsertLaunch(ctx context.Context, launch *telegram.AuthenticatedLaunch) error {
	return repo.UpsertUser(ctx, s.DB, &domain.User{
		TelegramID:   launch.TelegramID,
		LanguageCode: launch.LanguageCode,
		Username:     launch.Username,
		FirstName:    launch.FirstName,
		LastName:     launch.LastName,
		IsPremium:    launch.IsPremium,
		PhotoURL:     launch.PhotoURL,
		StartParam:   launch.StartParam,
	})
}

// UpsertSender stores the identity attached to an inbound bot update
// (e.g. the /start command author).
func (s *UserService) UpsertSender(ctx context.Context, from *telegram.User) error {
	lang := "en"
	if from.LanguageCode != nil && *from.LanguageCode != "" {
		lang = *from.LanguageCode
	}
	first := from.FirstName
	u := &domain.User{
		TelegramID:   from.ID,
		LanguageCode: lang,
		Username:     from.Username,
		LastName:     from.LastName,
		IsPremium:    from.IsPremium,
	}
	if first != "" {
		u.FirstName = &first
	}
	return repo.UpsertUser(ctx, s.DB, u)
}

// Get returns the stored identity for telegramID, or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, telegramID int64) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, telegramID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}
