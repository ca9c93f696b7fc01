// Command server runs the mini-app backend: it opens the SQLite ledger,
// registers the gateway webhook, and serves the HTTP API until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avetisov/tg-miniapp-backend/internal/config"
	httpapi "github.com/avetisov/tg-miniapp-backend/internal/http"
	"github.com/avetisov/tg-miniapp-backend/internal/observability"
	"github.com/avetisov/tg-miniapp-backend/internal/repo"
	"github.com/avetisov/tg-miniapp-backend/internal/telegram"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	config.LoadEnvFile()
	cfg := config.MustLoad()

	setupLogging(cfg)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open ledger failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("ledger migration failed")
	}

	gw := telegram.NewBot(cfg.Telegram.BotToken,
		telegram.WithDefault("parse_mode", telegram.ParseModeHTML),
		telegram.WithLogger(log.Logger),
	)
	validator := telegram.NewWebAppValidator(cfg.Telegram.BotToken, cfg.Telegram.AuthCheckEnabled)

	if cfg.Telegram.WebhookHost != "" {
		if err := registerWebhook(ctx, gw, cfg); err != nil {
			log.Fatal().Err(err).Msg("webhook registration failed")
		}
	} else {
		log.Warn().Msg("TELEGRAM_BOT_WEBHOOK_HOST not set, skipping webhook registration")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, gw, validator, cfg, log.Logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("server stopped")
}

// registerWebhook points the gateway at this deployment. The cache-busting
// query param forces the gateway to re-resolve the target after redeploys
// behind the same host.
func registerWebhook(ctx context.Context, gw *telegram.Bot, cfg config.Config) error {
	base := strings.TrimRight(cfg.Telegram.WebhookHost, "/")
	url := fmt.Sprintf("%s%s/telegram?ts=%d", base, cfg.APIBasePath, time.Now().Unix())

	regCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	return gw.SetWebhook(regCtx, url, cfg.Telegram.WebhookSecret)
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
