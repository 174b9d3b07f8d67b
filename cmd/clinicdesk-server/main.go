package main

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/domain/calendar"
	"github.com/clinicdesk/clinicdesk/internal/domain/dashboard"
	"github.com/clinicdesk/clinicdesk/internal/domain/incident"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/middleware"
	"github.com/clinicdesk/clinicdesk/internal/platform/seed"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicdesk-server",
		Short: "Clinic management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the record store with the demo fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := seed.Run(ctx, st, logger); err != nil {
				return fmt.Errorf("seed store: %w", err)
			}
			fmt.Println("Store seeded")
			return nil
		},
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "" || os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openStore picks the Postgres backend when DATABASE_URL is set, the JSON
// file otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		st, err := store.NewPGStore(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		logger.Info().Msg("using postgres record store")
		return st, nil
	}
	st, err := store.NewFileStore(cfg.StorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}
	logger.Info().Str("path", cfg.StorePath).Msg("using file record store")
	return st, nil
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve timezone")
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
		}); err != nil {
			logger.Fatal().Err(err).Msg("failed to init sentry")
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open record store")
	}
	defer st.Close()

	if err := seed.Run(ctx, st, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed record store")
	}

	sessionKey := cfg.SessionKey
	if sessionKey == "" {
		// Dev only: a random per-process key means tokens die with the
		// process.
		buf := make([]byte, 32)
		if _, err := cryptorand.Read(buf); err != nil {
			logger.Fatal().Err(err).Msg("failed to generate session key")
		}
		sessionKey = hex.EncodeToString(buf)
		logger.Warn().Msg("SESSION_KEY not set, sessions will not survive restarts")
	}
	tokens := auth.NewTokenIssuer(sessionKey, cfg.SessionTTLDuration())

	// Services
	authSvc := auth.NewService(st, tokens, logger)
	patientRepo := patient.NewStoreRepository(st, logger)
	patientSvc := patient.NewService(patientRepo, st, logger)
	incidentRepo := incident.NewStoreRepository(st, logger)
	incidentSvc := incident.NewService(incidentRepo, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	apiV1 := e.Group("/api/v1")

	// Auth and signup are the only routes reachable without a session.
	authGroup := apiV1.Group("/auth")
	auth.NewHandler(authSvc).Register(authGroup, tokens)
	patientHandler := patient.NewHandler(patientSvc)
	patientHandler.RegisterPublic(authGroup)

	// Admin surface
	adminGroup := apiV1.Group("", auth.Authenticate(tokens), auth.RequireRole(auth.RoleAdmin))
	patientHandler.RegisterAdmin(adminGroup)
	incidentHandler := incident.NewHandler(incidentSvc, logger)
	incidentHandler.RegisterAdmin(adminGroup)
	dashboard.NewHandler(patientSvc, incidentSvc).RegisterAdmin(adminGroup)
	calendar.NewHandler(incidentSvc, loc).RegisterAdmin(adminGroup)

	// Patient self-service surface
	meGroup := apiV1.Group("", auth.Authenticate(tokens), auth.RequireRole(auth.RolePatient))
	patientHandler.RegisterMe(meGroup)
	incidentHandler.RegisterMe(meGroup)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
