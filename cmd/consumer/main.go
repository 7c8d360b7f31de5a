package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/logging"
	"github.com/example/ride-hailing/internal/models"
)

// The consumer drains the driver-locations topic and keeps the shared redis
// geo index current, so API replicas that did not receive a sample over HTTP
// or websocket still dispatch against fresh positions.

var (
	samplesConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_hailing",
		Subsystem: "consumer",
		Name:      "samples_consumed_total",
		Help:      "Location samples read from kafka.",
	})
	samplesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_hailing",
		Subsystem: "consumer",
		Name:      "samples_rejected_total",
		Help:      "Samples dropped for malformed payloads.",
	})
	indexWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_hailing",
		Subsystem: "consumer",
		Name:      "index_write_failures_total",
		Help:      "Geo index writes that exhausted retries.",
	})
)

// GeoUpdater is the slice of the geo index the consumer needs.
type GeoUpdater interface {
	Upsert(ctx context.Context, d models.Driver) error
}

const (
	maxWriteAttempts = 3
	retryBackoff     = 200 * time.Millisecond
)

func updateIndexWithRetry(ctx context.Context, idx GeoUpdater, sample models.LocationSample) error {
	d := models.Driver{
		ID:     sample.DriverID,
		Status: models.DriverIdle,
		Loc:    &models.Coord{Lat: sample.Lat, Lng: sample.Lng},
	}
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		if err = idx.Upsert(ctx, d); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func consumeLoop(ctx context.Context, reader *kafka.Reader, idx GeoUpdater, ready *atomic.Bool) {
	logger := logging.NewLogger(os.Getenv("LOG_LEVEL"))
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("fetch message", "error", err)
			time.Sleep(time.Second)
			continue
		}
		ready.Store(true)

		var sample models.LocationSample
		if err := json.Unmarshal(msg.Value, &sample); err != nil || sample.DriverID == "" {
			samplesRejected.Inc()
			logger.Warn("malformed sample", "offset", msg.Offset, "error", err)
			_ = reader.CommitMessages(ctx, msg)
			continue
		}
		loc := models.Coord{Lat: sample.Lat, Lng: sample.Lng}
		if !loc.Valid() {
			samplesRejected.Inc()
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		if err := updateIndexWithRetry(ctx, idx, sample); err != nil {
			indexWriteFailures.Inc()
			logger.Error("index write failed", "driver_id", sample.DriverID, "error", err)
			// leave the message uncommitted so a healthy replica retries it
			continue
		}
		samplesConsumed.Inc()
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error("commit", "error", err)
		}
	}
}

func main() {
	logger := logging.NewLogger(os.Getenv("LOG_LEVEL"))

	brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "driver-locations"
	}
	groupID := os.Getenv("KAFKA_GROUP_ID")
	if groupID == "" {
		groupID = "geo-index-sync"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if len(brokers) == 0 || brokers[0] == "" || redisAddr == "" {
		logger.Error("KAFKA_BROKERS and REDIS_ADDR are required")
		os.Exit(1)
	}
	geoKey := os.Getenv("REDIS_GEO_KEY")
	if geoKey == "" {
		geoKey = "drivers_geo"
	}

	idx := geo.NewRedisIndex(redisAddr, os.Getenv("REDIS_PASSWORD"), geoKey)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		StartOffset: kafka.LastOffset,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ready atomic.Bool
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8081"
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	logger.Info("consumer started", "topic", topic, "group", groupID)
	consumeLoop(ctx, reader, idx, &ready)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("consumer stopped")
}
