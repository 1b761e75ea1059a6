// Command api serves the calendar event API.
//
// @title Calendar Share API
// @version 1.0
// @description Personal calendar events with scheduling rules and share-by-email.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calendarshare/config"
	"calendarshare/internal/adapters/auth"
	"calendarshare/internal/adapters/email"
	"calendarshare/internal/adapters/ical"
	deliveryhttp "calendarshare/internal/delivery/http"
	"calendarshare/internal/delivery/http/controllers"
	"calendarshare/internal/delivery/http/middleware"
	"calendarshare/internal/dispatch"
	"calendarshare/internal/repository/postgres"
	"calendarshare/internal/scheduling"
	"calendarshare/internal/services"

	_ "github.com/lib/pq"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	eventRepo := postgres.NewEventRepository(db)
	userRepo := postgres.NewUserRepository(db)

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.Mail.Provider,
		FromAddress: cfg.Mail.FromAddress,
		FromName:    cfg.Mail.FromName,
		SES: email.SESConfig{
			Region:             cfg.Mail.AWSRegion,
			AccessKeyID:        cfg.Mail.AWSAccessKeyID,
			SecretAccessKey:    cfg.Mail.AWSSecretAccessKey,
			InsecureSkipVerify: cfg.Mail.SESInsecureSkipVerify,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("create mailer: %w", err)
	}
	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		return fmt.Errorf("load email templates: %w", err)
	}
	emailService := services.NewEmailService(mailer, renderer, logger)

	dispatcher := dispatch.New(logger)
	shareDef := services.NewShareEventDefinition(emailService, dispatch.Kind{
		Concurrency: cfg.ShareMail.Concurrency,
		Attempts:    cfg.ShareMail.Attempts,
		Backoff:     dispatch.NewExponentialWithJitter(cfg.ShareMail.BackoffInitial, cfg.ShareMail.BackoffMax),
		RateLimit:   rate.Limit(cfg.ShareMail.RatePerSecond),
	})
	if err := dispatch.Register(dispatcher, shareDef); err != nil {
		return fmt.Errorf("register share mail kind: %w", err)
	}
	if err := dispatcher.Start(context.Background()); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := dispatcher.Stop(stopCtx); err != nil {
			logger.Warn("dispatcher stop", "err", err)
		}
	}()

	eventService := services.NewEventService(
		eventRepo,
		scheduling.NewValidator(eventRepo),
		services.NewShareEventQueue(dispatcher, shareDef),
		cfg.Mail.Location,
		cfg.RequestTimeout,
	)
	userService := services.NewUserService(
		userRepo,
		auth.NewBcryptHasher(0),
		auth.NewJWTIssuer(cfg.JWTSecret),
		cfg.JWTExpiry,
		cfg.RequestTimeout,
	)

	router := deliveryhttp.NewRouter(
		controllers.NewEventController(logger, eventService, ical.NewEncoder(ical.DefaultProductID, "calendarshare")),
		controllers.NewUserController(logger, userService),
		auth.NewJWTVerifier(cfg.JWTSecret),
		userService,
		logger,
	)
	handler := middleware.LoggingMiddleware(logger, middleware.CORS(cfg.CORSOrigins, router))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
