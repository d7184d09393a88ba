package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"edunexia/internal/charge"
	"edunexia/internal/common/database"
	"edunexia/internal/common/middleware"
	"edunexia/internal/common/nats"
	"edunexia/internal/gateway"
	"edunexia/internal/wizard"
	"edunexia/internal/wizard/api"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"CHARGES_PORT" default:"8086"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"memory"`

	FeeRates           charge.FeeSchedule `envconfig:"CHARGES_FEE_RATES" default:"BOLETO_PIX:0.04,CREDIT_CARD:0.05"`
	MaxInstallments    int                `envconfig:"CHARGES_MAX_INSTALLMENTS" default:"12"`
	CORSAllowedOrigins []string           `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	Database database.Config
	NATS     nats.Config
	Gateway  gateway.Config
}

func main() {
	// A missing .env is fine; the environment alone is enough.
	_ = godotenv.Load()

	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.FeeRates.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid CHARGES_FEE_RATES: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var readiness []func(context.Context) error

	// Select the wizard store
	var store wizard.Store
	switch cfg.StoreDriver {
	case "memory":
		store = wizard.NewMemoryStore()
	case "postgres":
		db, err := database.New(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(cfg.Database.URL, logger); err != nil {
				logger.Error("failed to migrate database", "error", err)
				os.Exit(1)
			}
		}
		store = wizard.NewPostgresStore(db)
		readiness = append(readiness, db.HealthCheck)
	default:
		logger.Error("unknown store driver", "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	// Create services
	gatewayClient := gateway.NewClient(cfg.Gateway, logger)
	wizardService := wizard.NewService(store, gatewayClient, wizard.Config{
		Fees:   cfg.FeeRates,
		Limits: charge.Limits{MaxInstallments: cfg.MaxInstallments},
	}, logger)

	// Connect to NATS
	if cfg.NATS.Enabled {
		natsClient, err := nats.New(ctx, cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		if _, err := natsClient.EnsureStream(ctx, nats.DefaultStreamConfig(cfg.NATS.Stream)); err != nil {
			logger.Error("failed to ensure stream", "error", err)
			os.Exit(1)
		}
		wizardService.SetPublisher(nats.NewPublisher(natsClient, logger))
		readiness = append(readiness, func(context.Context) error { return natsClient.HealthCheck() })
	}

	// Create handlers
	wizardHandler := api.NewHandler(wizardService, gatewayClient, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.CorrelationIDHeader},
		ExposedHeaders: []string{middleware.CorrelationIDHeader},
		MaxAge:         86400,
	}).Handler)
	r.Use(chimw.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready check
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		for _, check := range readiness {
			if err := check(r.Context()); err != nil {
				logger.Warn("readiness check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"not ready"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/", wizardHandler.Routes())
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Gateway.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting charges service",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"store", cfg.StoreDriver,
			"fee_rates", cfg.FeeRates.String(),
			"max_installments", cfg.MaxInstallments,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
