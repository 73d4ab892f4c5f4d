package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/config"
	"github.com/Ramsey-B/juniper/db/migrations"
	"github.com/Ramsey-B/juniper/internal/repositories/corporation"
	"github.com/Ramsey-B/juniper/internal/services/pipeline"
	"github.com/Ramsey-B/juniper/pkg/assembler"
	"github.com/Ramsey-B/juniper/pkg/currency"
	"github.com/Ramsey-B/juniper/pkg/database"
	"github.com/Ramsey-B/juniper/pkg/descriptors"
	"github.com/Ramsey-B/juniper/pkg/health"
	"github.com/Ramsey-B/juniper/pkg/kafka"
	"github.com/Ramsey-B/juniper/pkg/processor"
	"github.com/Ramsey-B/juniper/pkg/redis"
	"github.com/Ramsey-B/juniper/pkg/resolver"
	"github.com/Ramsey-B/juniper/pkg/routes"
	"github.com/Ramsey-B/juniper/pkg/salestax"
	"github.com/Ramsey-B/juniper/pkg/startup"
	"github.com/Ramsey-B/juniper/pkg/tracing"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the event processor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}

			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}

			logger, sync, err := newLogger(cfg.LogLevel, cfg.PrettyLogs)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "optional .env file to load before the environment")

	return cmd
}

// app holds everything the startup sequence builds.
type app struct {
	cfg          *config.Config
	logger       ectologger.Logger
	checker      *health.Checker
	db           *database.DatabaseInstance
	cache        *redis.Client
	salesTax     *salestax.Client
	service      *pipeline.Service
	producer     *kafka.Producer
	consumer     *kafka.Consumer
	server       *http.Server
	serverErrors chan error
}

func serve(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing())
	if err != nil {
		return err
	}

	a := &app{
		cfg:          cfg,
		logger:       logger,
		checker:      health.NewChecker(cfg.Version),
		serverErrors: make(chan error, 1),
	}

	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	s.AddDependency(startup.Dependency{Name: "database", StartFunc: a.startDatabase, StopFunc: a.stopDatabase})
	s.AddDependency(startup.Dependency{Name: "redis", StartFunc: a.startRedis, StopFunc: a.stopRedis})
	s.AddDependency(startup.Dependency{Name: "salestax", StartFunc: a.startSalesTax})
	s.AddDependency(startup.Dependency{
		Name:      "pipeline",
		Requires:  []string{"database", "redis", "salestax"},
		StartFunc: a.startPipeline,
	})
	s.AddDependency(startup.Dependency{
		Name:      "kafka",
		Requires:  []string{"pipeline"},
		StartFunc: a.startKafka,
		StopFunc:  a.stopKafka,
	})
	s.AddDependency(startup.Dependency{
		Name:      "http",
		Requires:  []string{"pipeline"},
		StartFunc: a.startHTTP,
		StopFunc:  a.stopHTTP,
	})

	if err := s.Start(ctx); err != nil {
		_ = s.Stop(context.Background())
		return err
	}
	a.checker.SetReady(true)
	logger.Infof("%s is ready on port %d", cfg.AppName, cfg.Port)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-a.serverErrors:
		logger.WithError(runErr).Error("HTTP server stopped unexpectedly")
	}

	a.checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := s.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop cleanly")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}

	return runErr
}

func (a *app) startDatabase(ctx context.Context) error {
	if !a.cfg.DatabaseEnabled() {
		a.logger.Warn("DB_HOST is not set, corporation settings use defaults")
		return nil
	}

	db, err := database.Connect(ctx, a.cfg.Database(), a.logger)
	if err != nil {
		return err
	}

	if err := database.NewMigrationService(a.logger, a.cfg.Migration(migrations.FS)).MigratePostgres(db); err != nil {
		_ = db.Close()
		return err
	}

	a.db = db
	a.checker.Register("database", db.PingContext)
	return nil
}

func (a *app) stopDatabase(_ context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *app) startRedis(ctx context.Context) error {
	if !a.cfg.RedisEnabled() {
		a.logger.Warn("REDIS_HOST is not set, directory lookups are not cached and events are not deduplicated")
		return nil
	}

	client, err := redis.NewClient(a.cfg.Redis(), a.logger)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	a.cache = client
	a.checker.RegisterOptional("redis", client.Ping)
	return nil
}

func (a *app) stopRedis(_ context.Context) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Close()
}

func (a *app) startSalesTax(_ context.Context) error {
	if !a.cfg.SalesTaxEnabled() {
		a.logger.Warn("SALES_TAX_BASE_URL is not set, references resolve against an empty directory")
		return nil
	}

	client, err := salestax.NewClient(a.cfg.SalesTax(), a.logger)
	if err != nil {
		return err
	}
	a.salesTax = client
	return nil
}

func (a *app) startPipeline(_ context.Context) error {
	set, err := descriptors.Load()
	if err != nil {
		return err
	}

	var directory resolver.Directory = resolver.NewMemoryDirectory()
	var calculator pipeline.Calculator
	if a.salesTax != nil {
		directory = a.salesTax
		calculator = a.salesTax
	}
	if a.cache != nil {
		directory = resolver.NewCachedDirectory(directory, a.cache, a.cfg.CacheTTL, a.logger)
	}

	var corporations pipeline.CorporationRepository
	if a.db != nil {
		corporations = corporation.NewRepository(a.db, a.logger)
	}

	builder := assembler.New(resolver.NewResolver(directory, a.logger), currency.NewConverter(), a.logger)
	a.service = pipeline.NewService(set, corporations, builder, calculator, a.logger)
	return nil
}

func (a *app) startKafka(ctx context.Context) error {
	if !a.cfg.KafkaConsumerEnabled {
		return nil
	}

	producer, err := kafka.NewProducer(a.cfg.KafkaProducer(), a.logger)
	if err != nil {
		return err
	}

	consumer, err := kafka.NewConsumer(a.cfg.KafkaConsumer(), a.logger)
	if err != nil {
		_ = producer.Close()
		return err
	}

	var claimer processor.Claimer
	if a.cache != nil {
		claimer = a.cache
	}

	proc := processor.NewProcessor(a.cfg.Processor(), a.service, producer, claimer, a.logger)
	if err := consumer.Start(ctx, proc.MessageHandler()); err != nil {
		_ = producer.Close()
		return err
	}

	a.producer = producer
	a.consumer = consumer
	return nil
}

func (a *app) stopKafka(_ context.Context) error {
	if a.consumer == nil {
		return nil
	}
	if err := a.consumer.Stop(); err != nil {
		return err
	}
	return a.producer.Close()
}

func (a *app) startHTTP(_ context.Context) error {
	e := routes.NewServer(a.cfg.Server(), a.service, a.checker, a.logger)

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           e,
		ReadTimeout:       a.cfg.HttpServerReadTimeout,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		WriteTimeout:      a.cfg.HttpServerWriteTimeout,
		IdleTimeout:       a.cfg.HttpServerIdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	go func(e *echo.Echo) {
		if err := e.StartServer(a.server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.serverErrors <- err
		}
	}(e)

	return nil
}

func (a *app) stopHTTP(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
