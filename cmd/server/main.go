package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ride-hailing/internal/broadcast"
	"github.com/example/ride-hailing/internal/cancel"
	"github.com/example/ride-hailing/internal/config"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/fare"
	"github.com/example/ride-hailing/internal/geo"
	httpapi "github.com/example/ride-hailing/internal/http"
	"github.com/example/ride-hailing/internal/ingest"
	"github.com/example/ride-hailing/internal/lifecycle"
	"github.com/example/ride-hailing/internal/logging"
	"github.com/example/ride-hailing/internal/payments"
	"github.com/example/ride-hailing/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("info").Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stores: postgres when a DSN is set, in-memory otherwise
	var (
		riders  storage.RiderStore
		drivers storage.DriverStore
		rides   storage.RideStore
	)
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if cfg.RunMigrations {
			schema, err := os.ReadFile("migrations/001_init.sql")
			if err != nil {
				logger.Error("read migration", "error", err)
				os.Exit(1)
			}
			if err := pg.Exec(ctx, string(schema)); err != nil {
				logger.Error("apply migration", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		riders, drivers, rides = pg.Riders(), pg.Drivers(), pg.Rides()
		logger.Info("storage ready", "backend", "postgres")
	} else {
		mem := storage.NewMemoryStore()
		riders, drivers, rides = mem.Riders(), mem.Drivers(), mem.Rides()
		logger.Info("storage ready", "backend", "memory")
	}

	var index geo.Index
	if cfg.RedisAddr != "" {
		index = geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		logger.Info("geo index ready", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		index = geo.NewMemoryIndex()
		logger.Info("geo index ready", "backend", "memory")
	}

	var pipeline broadcast.LocationPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		pipeline = producer
		logger.Info("location pipeline ready", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var settlement lifecycle.Settlement
	if os.Getenv("STRIPE_API_KEY") != "" {
		settlement = &payments.RideSettlement{Client: payments.NewStripeClient(), Currency: "usd"}
		logger.Info("stripe settlement enabled")
	}

	hub := broadcast.NewHub(0)
	locations := &broadcast.Service{
		Hub:      hub,
		Drivers:  drivers,
		Geo:      index,
		Pipeline: pipeline,
		Logger:   logger,
	}
	dispatcher := &dispatch.Service{
		Geo:         index,
		Riders:      riders,
		Drivers:     drivers,
		Rides:       rides,
		SearchLimit: cfg.DispatchSearchLimit,
		MaxRetries:  cfg.DispatchMaxRetries,
		Logger:      logger,
	}
	rideSvc := &lifecycle.Service{
		Rides:      rides,
		Drivers:    drivers,
		Fare:       fare.NewCalculator(cfg.Fare),
		Policy:     cancel.NewPolicy(cfg.Cancel),
		Events:     locations,
		Settlement: settlement,
		Logger:     logger,
	}

	api := httpapi.NewServer(httpapi.Deps{
		Logger:    logger,
		Dispatch:  dispatcher,
		Lifecycle: rideSvc,
		Locations: locations,
		Hub:       hub,
		Riders:    riders,
		Drivers:   drivers,
		Heartbeat: cfg.HeartbeatInterval,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server", "error", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", "error", err)
	}
	hub.Close()
	logger.Info("server stopped")
}
