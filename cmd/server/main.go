package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/client"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/config"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/database"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/handler"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/logger"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/middleware"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/policy"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository/memory"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Approvals Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the request store
	var store repository.RequestStore
	switch cfg.Store.Driver {
	case "memory":
		store = memory.New()
		log.Info().Msg("Using in-memory request store")
	default:
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.Database,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		store = repository.NewRequestRepository(db)
		log.Info().Msg("Database connection established")
	}

	// Initialize the org directory client
	var directory service.DirectoryClientInterface
	switch cfg.Directory.Driver {
	case "memory":
		directory = client.NewDemoDirectory()
		log.Info().Msg("Using in-memory org directory")
	default:
		directory = client.NewDirectoryClient(cfg.Directory.BaseURL, cfg.Directory.Timeout)
		log.Info().Str("directory_url", cfg.Directory.BaseURL).Msg("Org directory client initialized")
	}

	// Initialize NATS publisher. An empty URL disables event publishing.
	var natsClient *client.NATSClient
	if cfg.NATS.URL != "" {
		natsClient, err = client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsClient.Close()
		log.Info().Str("nats_url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS URL not configured, event publishing disabled")
	}
	publisher := client.NewNotificationPublisher(natsClient, log.Logger)

	// Build the policy table
	table := policy.Default(cfg.Escalation.SLA)
	if cfg.Policy.File != "" {
		if err := table.ApplyFile(cfg.Policy.File); err != nil {
			log.Fatal().Err(err).Str("file", cfg.Policy.File).Msg("Failed to load policy file")
		}
		log.Info().Str("file", cfg.Policy.File).Msg("Policy overrides loaded")
	}
	builder := policy.NewBuilder(table, directory)

	// Initialize services
	approvalService := service.NewApprovalService(store, builder, table, directory, publisher, log)
	gatingService := service.NewGatingService(store, log)

	sweeper := service.NewEscalationSweeper(store, directory, publisher, service.EscalationConfig{
		SweepInterval: cfg.Escalation.SweepInterval,
		Reassign:      cfg.Escalation.Reassign,
		TargetRole:    cfg.Escalation.TargetRole,
	}, log)
	sweeper.Start()

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvalService, gatingService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Approval routes
	mux.HandleFunc("/api/v1/approvals", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListRequests(w, r)
		case http.MethodPost:
			httpHandler.SubmitRequest(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/approvals/get", httpHandler.GetRequest)
	mux.HandleFunc("/api/v1/approvals/act", httpHandler.ActOnRequest)
	mux.HandleFunc("/api/v1/approvals/withdraw", httpHandler.WithdrawRequest)
	mux.HandleFunc("/api/v1/approvals/pending", httpHandler.ListPending)
	mux.HandleFunc("/api/v1/approvals/mine", httpHandler.ListMine)
	mux.HandleFunc("/api/v1/approvals/audit", httpHandler.GetAuditTrail)

	// Gating routes
	mux.HandleFunc("/api/v1/gates/check", httpHandler.CheckGate)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)
	h = middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	sweeper.Stop()

	log.Info().Msg("Server stopped")
}
