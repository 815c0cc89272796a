package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/events"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/handler"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/service"
	"github.com/lifetag/lifetag-backend/internal/pharmacy/store"
	"github.com/lifetag/lifetag-backend/pkg/config"
	"github.com/lifetag/lifetag-backend/pkg/database"
	"github.com/lifetag/lifetag-backend/pkg/httputil"
	"github.com/lifetag/lifetag-backend/pkg/logger"
	"github.com/lifetag/lifetag-backend/pkg/mailer"
	"github.com/lifetag/lifetag-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("pharmacy-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("pharmacy-service", cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Service")

	// Initialize repositories against the configured storage driver
	var (
		stockRepo        repository.StockRepository
		alertRepo        repository.AlertRepository
		prescriptionRepo repository.PrescriptionRepository
		patientRepo      repository.PatientRepository
		saleRepo         repository.SaleRepository
		dbHealth         func(context.Context) map[string]string
	)

	switch cfg.Database.Driver {
	case "postgres":
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		stockRepo = repository.NewPostgresStockRepository(db)
		alertRepo = repository.NewPostgresAlertRepository(db)
		prescriptionRepo = repository.NewPostgresPrescriptionRepository(db)
		patientRepo = repository.NewPostgresPatientRepository(db)
		saleRepo = repository.NewPostgresSaleRepository(db)
		dbHealth = db.Health

	default:
		st, err := store.New(cfg.Database.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open csv store")
		}

		stockRepo = repository.NewCSVStockRepository(st)
		alertRepo = repository.NewCSVAlertRepository(st)
		prescriptionRepo = repository.NewCSVPrescriptionRepository(st)
		patientRepo = repository.NewCSVPatientRepository(st)
		saleRepo = repository.NewCSVSaleRepository(st)
		dbHealth = func(context.Context) map[string]string {
			return map[string]string{"status": "up", "driver": "csv"}
		}
	}

	// Connect to RabbitMQ when configured; an empty URL disables events
	var publisher *events.PharmacyEventPublisher
	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQ.URL != "" {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = events.NewPharmacyEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	} else {
		log.Warn().Msg("RabbitMQ not configured, event publishing disabled")
	}

	// Mail transport; falls back to log-only without an SMTP host
	notifier := mailer.FromConfig(&cfg.SMTP, log)

	// Initialize services
	alertEngine := service.NewAlertEngine(stockRepo, alertRepo, publisher, log)
	ledger := service.NewLedgerService(stockRepo, alertEngine, publisher, log)
	dispatcher := service.NewDispatcher(alertEngine, prescriptionRepo, patientRepo, notifier, service.DispatcherConfig{
		SiteBase:         cfg.Server.SiteBase,
		PharmacyEmail:    cfg.SMTP.PharmacyEmail,
		AdminEmail:       cfg.SMTP.AdminEmail,
		RenotifyInterval: cfg.Alerts.RenotifyInterval,
		QueueSize:        cfg.Alerts.DispatchQueueSize,
		Workers:          cfg.Alerts.DispatchWorkers,
	}, log)
	dispenseService := service.NewDispenseService(
		ledger, alertEngine, dispatcher,
		prescriptionRepo, patientRepo, saleRepo,
		publisher, cfg.Alerts.ExpiryThresholdDays, log,
	)
	scheduler := service.NewSweepScheduler(
		alertEngine, dispatcher,
		cfg.Alerts.SweepInterval,
		cfg.Alerts.ExpiryThresholdDays, cfg.Alerts.LowStockThreshold,
		cfg.Alerts.RenotifyInterval,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.Start(ctx)
	scheduler.Start(ctx)

	// Initialize handlers
	stockHandler := handler.NewStockHandler(ledger, log)
	alertHandler := handler.NewAlertHandler(alertEngine, dispatcher, cfg.Alerts.ExpiryThresholdDays, cfg.Alerts.LowStockThreshold, log)
	prescriptionHandler := handler.NewPrescriptionHandler(prescriptionRepo, dispenseService, log)
	patientHandler := handler.NewPatientHandler(patientRepo, prescriptionRepo, alertRepo, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":   "healthy",
			"service":  "pharmacy-service",
			"database": dbHealth(r.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload_bill", stockHandler.UploadBill)
		r.Get("/inventory", stockHandler.Inventory)
		r.Post("/delete_stock", stockHandler.DeleteStock)

		r.Get("/alerts", alertHandler.List)
		r.Get("/resolve_alert", alertHandler.Resolve)

		r.Post("/register_patient", patientHandler.Register)
		r.Route("/patients", func(r chi.Router) {
			r.Get("/", patientHandler.List)
			r.Get("/{id}", patientHandler.Get)
			r.Get("/{id}/alerts", patientHandler.Alerts)
		})

		r.Route("/prescriptions", func(r chi.Router) {
			r.Get("/", prescriptionHandler.List)
			r.Post("/", prescriptionHandler.Create)
			r.Get("/{id}", prescriptionHandler.Get)
		})
		r.Post("/dispense", prescriptionHandler.Dispense)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	scheduler.Stop()
	dispatcher.Stop()
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
