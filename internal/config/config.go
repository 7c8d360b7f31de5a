package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Fare holds the pricing constants. Amounts are in the smallest currency
// unit; rates are per km / per minute.
type Fare struct {
	BaseFare        int64
	PerKm           int64
	PerMinute       int64
	LongDistanceKm  float64 // distance threshold for the surcharge
	LongDistPerKm   int64   // surcharge rate beyond the threshold
	ErrandFee       int64   // flat fee added on errand rides (on top of the deposit)
	DesignatedFee   int64   // flat fee added on designated-driver rides
	DesignatedTimes int64   // multiplier applied before the designated flat fee
	MinimumFare     int64
}

// Cancellation holds the cancellation-fee policy constants.
type Cancellation struct {
	GracePeriod time.Duration // time after driver arrival before a fee applies
	LateFee     int64
}

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	DispatchSearchLimit int // nearby candidates fetched per dispatch
	DispatchMaxRetries  int // lost reservation races tolerated before giving up

	Fare   Fare
	Cancel Cancellation

	HeartbeatInterval time.Duration // subscriber liveness probe period

	LogLevel      string
	RunMigrations bool
}

// DefaultFare returns the observed production rates; tests build calculators
// from it so rate changes stay in one place.
func DefaultFare() Fare {
	return Fare{
		BaseFare:        70,
		PerKm:           15,
		PerMinute:       3,
		LongDistanceKm:  20,
		LongDistPerKm:   10,
		ErrandFee:       100,
		DesignatedFee:   300,
		DesignatedTimes: 2,
		MinimumFare:     50,
	}
}

func DefaultCancellation() Cancellation {
	return Cancellation{GracePeriod: 3 * time.Minute, LateFee: 100}
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:            ":8080",
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        10 * time.Second,
		IdleTimeout:         120 * time.Second,
		ShutdownTimeout:     15 * time.Second,
		RedisGeoKey:         "drivers_geo",
		KafkaTopic:          "driver-locations",
		DispatchSearchLimit: 8,
		DispatchMaxRetries:  3,
		Fare:                DefaultFare(),
		Cancel:              DefaultCancellation(),
		HeartbeatInterval:   30 * time.Second,
		LogLevel:            "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setIntFromEnv(&cfg.DispatchSearchLimit, "DISPATCH_SEARCH_LIMIT", &errs)
	setIntFromEnv(&cfg.DispatchMaxRetries, "DISPATCH_MAX_RETRIES", &errs)

	setInt64FromEnv(&cfg.Fare.BaseFare, "FARE_BASE", &errs)
	setInt64FromEnv(&cfg.Fare.PerKm, "FARE_PER_KM", &errs)
	setInt64FromEnv(&cfg.Fare.PerMinute, "FARE_PER_MINUTE", &errs)
	setFloatFromEnv(&cfg.Fare.LongDistanceKm, "FARE_LONG_DISTANCE_KM", &errs)
	setInt64FromEnv(&cfg.Fare.LongDistPerKm, "FARE_LONG_DISTANCE_PER_KM", &errs)
	setInt64FromEnv(&cfg.Fare.ErrandFee, "FARE_ERRAND_FEE", &errs)
	setInt64FromEnv(&cfg.Fare.DesignatedFee, "FARE_DESIGNATED_FEE", &errs)
	setInt64FromEnv(&cfg.Fare.DesignatedTimes, "FARE_DESIGNATED_TIMES", &errs)
	setInt64FromEnv(&cfg.Fare.MinimumFare, "FARE_MINIMUM", &errs)

	setDurationFromEnv(&cfg.Cancel.GracePeriod, "CANCEL_GRACE_PERIOD", &errs)
	setInt64FromEnv(&cfg.Cancel.LateFee, "CANCEL_LATE_FEE", &errs)

	setDurationFromEnv(&cfg.HeartbeatInterval, "WS_HEARTBEAT_INTERVAL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.DispatchSearchLimit <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_SEARCH_LIMIT must be > 0"))
	}
	if cfg.DispatchMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MAX_RETRIES must be >= 0"))
	}
	if cfg.Fare.MinimumFare < 0 {
		errs = append(errs, fmt.Errorf("FARE_MINIMUM must be >= 0"))
	}
	if cfg.Fare.DesignatedTimes < 1 {
		errs = append(errs, fmt.Errorf("FARE_DESIGNATED_TIMES must be >= 1"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
