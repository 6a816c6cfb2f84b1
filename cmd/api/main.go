package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/engineering-enforcatech/idonatio-backend/account"
	"github.com/engineering-enforcatech/idonatio-backend/auth"
	"github.com/engineering-enforcatech/idonatio-backend/config"
	"github.com/engineering-enforcatech/idonatio-backend/db"
	"github.com/engineering-enforcatech/idonatio-backend/notify"
	"github.com/engineering-enforcatech/idonatio-backend/signup"
	"github.com/engineering-enforcatech/idonatio-backend/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.Level(cfg.LogLevel),
	}))

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("bootstrap database pool", "error", err.Error())
		os.Exit(1)
	}
	defer pool.Close()

	accounts := account.NewRepository(pool)
	tokens := token.NewManager(cfg.JWT.Secret, cfg.JWT.CredentialTTL)

	var notifier notify.Notifier
	if cfg.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		logger.Warn("no SMTP host configured, logging verification codes instead")
		notifier = notify.NewLogNotifier(logger)
	}

	server := NewServer(
		signup.NewService(accounts, tokens, notifier, logger),
		auth.NewService(accounts, tokens),
		auth.NewGuard(accounts, tokens),
		logger,
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err.Error())
	}
}
