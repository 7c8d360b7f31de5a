package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/storage"
)

var ErrInvalidSample = errors.New("invalid location sample")

// LocationPublisher mirrors accepted samples to an external pipeline
// (kafka). Optional and best-effort.
type LocationPublisher interface {
	PublishSample(ctx context.Context, s models.LocationSample) error
}

// Service is the location entry point: it persists the driver's latest
// position, feeds the geo index, mirrors to the pipeline and fans the marker
// out to watching passengers. It also implements the lifecycle event sink.
type Service struct {
	Hub      *Hub
	Drivers  storage.DriverStore
	Geo      geo.Index
	Pipeline LocationPublisher
	Logger   *slog.Logger
}

// ReportLocation ingests one driver position sample. Fire-and-forget from
// the driver's point of view: fan-out never blocks, only the entity update
// can fail.
func (s *Service) ReportLocation(ctx context.Context, sample models.LocationSample) error {
	loc := models.Coord{Lat: sample.Lat, Lng: sample.Lng}
	if sample.DriverID == "" || !loc.Valid() {
		return ErrInvalidSample
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	if err := s.Drivers.SetLocation(ctx, sample.DriverID, loc, sample.Timestamp); err != nil {
		return fmt.Errorf("store driver location: %w", err)
	}
	if d, err := s.Drivers.Get(ctx, sample.DriverID); err == nil {
		if err := s.Geo.Upsert(ctx, *d); err != nil && s.Logger != nil {
			s.Logger.Warn("geo upsert", "driver_id", sample.DriverID, "error", err)
		}
	}
	if s.Pipeline != nil {
		if err := s.Pipeline.PublishSample(ctx, sample); err != nil && s.Logger != nil {
			s.Logger.Warn("publish sample", "driver_id", sample.DriverID, "error", err)
		}
	}
	observability.LocationSamples.Inc()

	s.Hub.Publish(Event{
		Type:      EventDriverMarker,
		DriverID:  sample.DriverID,
		Location:  &loc,
		Timestamp: sample.Timestamp,
	})
	return nil
}

// StartMeter notifies subscribers watching the ride that the meter started.
// A control message, separate from the location stream.
func (s *Service) StartMeter(rideID, driverID string) {
	s.Hub.Publish(Event{
		Type:      EventMeterStarted,
		RideID:    rideID,
		DriverID:  driverID,
		Timestamp: time.Now(),
	})
}

// RideStatusChanged relays a lifecycle transition to watchers of the ride.
func (s *Service) RideStatusChanged(ride *models.Ride) {
	s.Hub.Publish(Event{
		Type:      EventRideStatus,
		RideID:    ride.ID,
		DriverID:  ride.DriverID,
		Status:    ride.Status,
		Timestamp: time.Now(),
	})
}
