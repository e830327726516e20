package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/scheduling-api/internal/config"
	"github.com/jwalitptl/scheduling-api/internal/email"
	"github.com/jwalitptl/scheduling-api/internal/handler"
	"github.com/jwalitptl/scheduling-api/internal/repository/postgres"
	notificationService "github.com/jwalitptl/scheduling-api/internal/service/notification"
	internalWorker "github.com/jwalitptl/scheduling-api/internal/worker"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
	"github.com/jwalitptl/scheduling-api/pkg/messaging/redis"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/worker"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig(os.Getenv("SCHEDULER_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	l := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
	logger.SetGlobal(l)

	if err := run(cfg, l); err != nil {
		l.Fatal(err, "Worker failed")
	}
}

func run(cfg *config.Config, l *logger.Logger) error {
	if cfg.Store.Driver != "postgres" {
		return fmt.Errorf("worker needs the postgres store, got %q", cfg.Store.Driver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg, "scheduling_worker")

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db, m)
	outboxRepo := postgres.NewOutboxRepository(base)
	directoryRepo := postgres.NewDirectoryRepository(base)

	// Initialize Redis broker
	broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), l.Zerolog(), m)
	if err != nil {
		return fmt.Errorf("failed to create Redis broker: %w", err)
	}
	defer broker.Close()

	var sender email.Service = email.NewLogService(l)
	if cfg.SMTP.Enabled {
		sender = email.NewSMTPService(cfg.SMTP.ToEmailConfig())
	}
	notifier := notificationService.NewService(sender, directoryRepo, m, l)
	if err := notifier.Listen(ctx, messaging.NewBrokerAdapter(broker, l.Zerolog()), cfg.Redis.Channel); err != nil {
		return err
	}

	processor := worker.NewOutboxProcessor(outboxRepo, broker, cfg.Redis.Channel, cfg.Outbox.ToWorkerConfig(), l, m)
	cleanup := internalWorker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, l, m)
	go cleanup.Start(ctx)

	checks := map[string]handler.Pinger{"database": directoryRepo}
	if p, ok := broker.(handler.Pinger); ok {
		checks["redis"] = p
	}
	srv := healthServer(cfg.Server.WorkerPort, handler.NewHandler(reg, checks))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error(err, "Health check server failed")
			stop()
		}
	}()

	l.Info("Worker started", "channel", cfg.Redis.Channel)
	processor.Start(ctx)

	l.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthServer(port int, h *handler.Handler) *http.Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	h.RegisterRoutes(engine.Group(""))

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
}
