package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/zafin-ops/be-fin-controls/internal/client"
	"github.com/zafin-ops/be-fin-controls/internal/config"
	"github.com/zafin-ops/be-fin-controls/internal/database"
	"github.com/zafin-ops/be-fin-controls/internal/handler"
	"github.com/zafin-ops/be-fin-controls/internal/logger"
	"github.com/zafin-ops/be-fin-controls/internal/middleware"
	"github.com/zafin-ops/be-fin-controls/internal/repository"
	"github.com/zafin-ops/be-fin-controls/internal/service"
	"github.com/zafin-ops/be-fin-controls/internal/tax"
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
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Financial Controls Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
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
	log.Info().Msg("Database connection established")

	// Initialize repositories
	workflowRepo := repository.NewApprovalWorkflowRepository(db)
	requestRepo := repository.NewApprovalRequestRepository(db)
	auditRepo := repository.NewApprovalAuditRepository(db)
	periodLockRepo := repository.NewPeriodLockRepository(db)

	// Initialize external clients
	notifier, err := client.NewNotificationPublisher(cfg.NATS.URL, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create notification publisher")
	}

	identityClient := client.NewIdentityClient(cfg.Identity.BaseURL)
	log.Info().Str("identity_url", cfg.Identity.BaseURL).Msg("Identity client initialized")

	// Initialize services
	approvalService := service.NewApprovalService(workflowRepo, requestRepo, auditRepo, identityClient, notifier, log)
	periodLockService := service.NewPeriodLockService(periodLockRepo, log)
	payrollService, err := service.NewPayrollService(tax.DefaultSchedule(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid tax schedule")
	}

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvalService, periodLockService, payrollService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Approval routes
	mux.HandleFunc("/api/v1/approvals", httpHandler.CreateApproval)
	mux.HandleFunc("/api/v1/approvals/resolve", httpHandler.ResolveApproval)
	mux.HandleFunc("/api/v1/approvals/get", httpHandler.GetApproval)
	mux.HandleFunc("/api/v1/approvals/pending", httpHandler.ListPendingApprovals)
	mux.HandleFunc("/api/v1/approvals/history", httpHandler.GetApprovalHistory)

	// Workflow tier routes
	mux.HandleFunc("/api/v1/workflows", httpHandler.Workflows)
	mux.HandleFunc("/api/v1/workflows/deactivate", httpHandler.DeactivateWorkflow)

	// Period lock routes
	mux.HandleFunc("/api/v1/period-locks", httpHandler.PeriodLocks)
	mux.HandleFunc("/api/v1/period-locks/disable", httpHandler.DisablePeriodLock)
	mux.HandleFunc("/api/v1/period-locks/validate", httpHandler.ValidateTransactionDate)

	// Payroll routes
	mux.HandleFunc("/api/v1/payroll/calculate", httpHandler.CalculatePayroll)
	mux.HandleFunc("/api/v1/payroll/run", httpHandler.CalculatePayrollRun)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.Server.WriteTimeout)(h)

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

	log.Info().Msg("Server stopped")
}
