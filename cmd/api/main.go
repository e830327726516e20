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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/scheduling-api/internal/config"
	"github.com/jwalitptl/scheduling-api/internal/directory"
	"github.com/jwalitptl/scheduling-api/internal/email"
	"github.com/jwalitptl/scheduling-api/internal/handler"
	bookingHandler "github.com/jwalitptl/scheduling-api/internal/handler/booking"
	exportHandler "github.com/jwalitptl/scheduling-api/internal/handler/export"
	providerHandler "github.com/jwalitptl/scheduling-api/internal/handler/provider"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
	"github.com/jwalitptl/scheduling-api/internal/repository/postgres"
	"github.com/jwalitptl/scheduling-api/internal/router"
	auditService "github.com/jwalitptl/scheduling-api/internal/service/audit"
	availabilityService "github.com/jwalitptl/scheduling-api/internal/service/availability"
	bookingService "github.com/jwalitptl/scheduling-api/internal/service/booking"
	exportService "github.com/jwalitptl/scheduling-api/internal/service/export"
	notificationService "github.com/jwalitptl/scheduling-api/internal/service/notification"
	internalWorker "github.com/jwalitptl/scheduling-api/internal/worker"
	"github.com/jwalitptl/scheduling-api/pkg/auth"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/validator"
	"github.com/jwalitptl/scheduling-api/pkg/worker"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "scheduling-api",
		Short:        "Appointment and staff scheduling coordinator",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	l := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
	logger.SetGlobal(l)
	return cfg, l, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := setup()
			if err != nil {
				return err
			}
			if store, _ := cmd.Flags().GetString("store"); store != "" {
				cfg.Store.Driver = store
			}
			if seed, _ := cmd.Flags().GetString("seed"); seed != "" {
				cfg.Directory.SeedFile = seed
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, l)
		},
	}
	cmd.Flags().String("store", "", "Storage driver: postgres or memory")
	cmd.Flags().String("seed", "", "Directory seed file to load at startup")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := setup()
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := postgres.NewMigrator(db).Up(cmd.Context())
			if err != nil {
				return err
			}
			l.Info("migrations applied", "count", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seed <file>",
		Short: "Load departments and providers from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := setup()
			if err != nil {
				return err
			}
			seed, err := directory.LoadFile(args[0])
			if err != nil {
				return err
			}
			db, err := postgres.NewDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := postgres.NewDirectoryRepository(postgres.NewBaseRepository(db, nil))
			n, err := seed.Apply(cmd.Context(), repo)
			if err != nil {
				return err
			}
			l.Info("directory seeded", "providers", n, "file", args[0])
			return nil
		},
	})

	return cmd
}

type stores struct {
	directory repository.DirectoryRepository
	bookings  repository.BookingRepository
	outbox    repository.OutboxRepository
	close     func() error
}

func openStores(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*stores, error) {
	if cfg.Store.Driver == "memory" {
		s := memory.NewStore()
		return &stores{directory: s, bookings: s, outbox: s, close: func() error { return nil }}, nil
	}

	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	base := postgres.NewBaseRepository(db, m)
	return &stores{
		directory: postgres.NewDirectoryRepository(base),
		bookings:  postgres.NewBookingRepository(base),
		outbox:    postgres.NewOutboxRepository(base),
		close:     db.Close,
	}, nil
}

func runServer(ctx context.Context, cfg *config.Config, l *logger.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg, "scheduling")

	st, err := openStores(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer st.close()

	if cfg.Directory.SeedFile != "" {
		seed, err := directory.LoadFile(cfg.Directory.SeedFile)
		if err != nil {
			return err
		}
		n, err := seed.Apply(ctx, st.directory)
		if err != nil {
			return err
		}
		l.Info("directory seeded", "providers", n, "file", cfg.Directory.SeedFile)
	}

	auditLogger, err := auditService.NewLogger(cfg.Audit.Output)
	if err != nil {
		return fmt.Errorf("failed to build audit logger: %w", err)
	}
	auditor := auditService.NewService(auditLogger)
	defer auditor.Sync()

	// Initialize services
	resolver := availabilityService.NewService(st.directory, st.bookings, cfg.Resolver.CacheTTL, m, l)
	bookings := bookingService.NewService(st.bookings, st.directory, resolver, auditor, m, l)
	exporter := exportService.NewService(st.bookings, st.directory, auditor)

	// Without a database there is no separate worker process, so events are
	// published and consumed in-process.
	if cfg.Store.Driver == "memory" {
		if err := startInProcessWorker(ctx, cfg, st, m, l); err != nil {
			return err
		}
	}

	checks := map[string]handler.Pinger{"store": st.directory}
	authMiddleware := middleware.NewAuthMiddleware(auth.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer))

	r := router.NewRouter(authMiddleware, router.Handlers{
		Ops:       handler.NewHandler(reg, checks),
		Providers: providerHandler.NewHandler(resolver),
		Bookings:  bookingHandler.NewHandler(bookings, validator.New()),
		Export:    exportHandler.NewHandler(exporter),
	}, router.RouterConfig{
		Mode:             cfg.Server.Mode,
		RequestTimeout:   cfg.Server.RequestTimeout,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit: middleware.RateLimiterConfig{
			RPS:   cfg.RateLimit.RPS,
			Burst: cfg.RateLimit.Burst,
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MetricsPrefix:  "scheduling_http",
		Registerer:     reg,
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("server listening", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server exited properly")
	return nil
}

func startInProcessWorker(ctx context.Context, cfg *config.Config, st *stores, m *metrics.Metrics, l *logger.Logger) error {
	broker := messaging.NewMemoryBroker()
	go func() {
		<-ctx.Done()
		broker.Close()
	}()

	var sender email.Service = email.NewLogService(l)
	if cfg.SMTP.Enabled {
		sender = email.NewSMTPService(cfg.SMTP.ToEmailConfig())
	}
	notifier := notificationService.NewService(sender, st.directory, m, l)
	if err := notifier.Listen(ctx, messaging.NewBrokerAdapter(broker, l.Zerolog()), cfg.Redis.Channel); err != nil {
		return err
	}

	processor := worker.NewOutboxProcessor(st.outbox, broker, cfg.Redis.Channel, cfg.Outbox.ToWorkerConfig(), l, m)
	go processor.Start(ctx)

	cleanup := internalWorker.NewOutboxCleanupWorker(st.outbox, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, l, m)
	go cleanup.Start(ctx)
	return nil
}
