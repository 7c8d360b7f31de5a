package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "dispatches_total", Help: "Total successful driver reservations"})
	DispatchNoDriver  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "dispatch_no_driver_total", Help: "Dispatch attempts that found no available driver"})
	DispatchRaceLost  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "dispatch_race_lost_total", Help: "Driver reservations lost to a concurrent dispatch"})
	DispatchLatency   = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_hailing", Name: "dispatch_latency_seconds", Help: "Dispatch latency seconds"})
	RidesCompleted    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "rides_completed_total", Help: "Rides reaching the completed state"})
	RidesCancelled    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "rides_cancelled_total", Help: "Rides reaching the cancelled state"})
	LocationSamples   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "location_samples_total", Help: "Driver location samples accepted"})
	BroadcastDropped  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "broadcast_dropped_total", Help: "Subscribers pruned after a failed delivery"})
	SubscribersActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_hailing", Name: "subscribers_active", Help: "Currently connected broadcast subscribers"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hailing", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_hailing",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
