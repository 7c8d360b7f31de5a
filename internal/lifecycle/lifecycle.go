// Package lifecycle owns the ride state machine. Every transition is a
// conditional write on the ride's current status, so two racing transitions
// on the same ride can never both succeed.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-hailing/internal/cancel"
	"github.com/example/ride-hailing/internal/fare"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/storage"
)

var (
	ErrDriverMismatch    = errors.New("driver mismatch")
	ErrRideTerminal      = errors.New("ride is in a terminal state")
	ErrInvalidTransition = errors.New("invalid ride transition")

	// ErrConflict means a concurrent transition won the conditional update.
	// Never retried here: replaying a stale transition could violate ordering.
	ErrConflict = errors.New("ride state conflict")
)

// Events receives rider-visible notifications. Implemented by the broadcast
// hub; nil disables publishing.
type Events interface {
	RideStatusChanged(ride *models.Ride)
	StartMeter(rideID, driverID string)
}

// Settlement captures money movements at completion and cancellation.
// Best-effort: a settlement failure is logged, not surfaced, since the ride
// itself has already transitioned.
type Settlement interface {
	CaptureFare(ctx context.Context, ride *models.Ride, amount int64) error
	CollectFee(ctx context.Context, ride *models.Ride, amount int64) error
}

type Service struct {
	Rides      storage.RideStore
	Drivers    storage.DriverStore
	Fare       *fare.Calculator
	Policy     *cancel.Policy
	Events     Events
	Settlement Settlement
	Logger     *slog.Logger

	// Clock is overridable in tests; defaults to time.Now.
	Clock func() time.Time
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// Accept moves assigned → accepted after verifying the calling driver is the
// one the ride was dispatched to.
func (s *Service) Accept(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	ride, err := s.Rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := guard(ride, models.StatusAccepted); err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, ErrDriverMismatch
	}
	now := s.now()
	return s.transition(ctx, ride, models.StatusAccepted, storage.RideUpdate{AcceptedAt: &now})
}

// MarkArrived moves accepted → arrived and records the arrival timestamp.
// The timestamp is written exactly once: a second call lands on the arrived
// state, where the transition is no longer permitted.
func (s *Service) MarkArrived(ctx context.Context, rideID string) (*models.Ride, error) {
	ride, err := s.Rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := guard(ride, models.StatusArrived); err != nil {
		return nil, err
	}
	if ride.DriverArrivedAt != nil {
		return nil, ErrInvalidTransition
	}
	now := s.now()
	return s.transition(ctx, ride, models.StatusArrived, storage.RideUpdate{DriverArrivedAt: &now})
}

// Start moves arrived → ongoing and announces the meter to watchers.
func (s *Service) Start(ctx context.Context, rideID string) (*models.Ride, error) {
	ride, err := s.Rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := guard(ride, models.StatusOngoing); err != nil {
		return nil, err
	}
	now := s.now()
	updated, err := s.transition(ctx, ride, models.StatusOngoing, storage.RideUpdate{StartedAt: &now})
	if err != nil {
		return nil, err
	}
	if s.Events != nil {
		s.Events.StartMeter(updated.ID, updated.DriverID)
	}
	return updated, nil
}

// Complete moves ongoing → completed, prices the trip and releases the
// driver. Distance is the great-circle pickup→dropoff length; duration is
// wall clock since the meter started.
func (s *Service) Complete(ctx context.Context, rideID string) (*models.Ride, models.FareBreakdown, error) {
	ride, err := s.Rides.Get(ctx, rideID)
	if err != nil {
		return nil, models.FareBreakdown{}, err
	}
	if err := guard(ride, models.StatusCompleted); err != nil {
		return nil, models.FareBreakdown{}, err
	}

	now := s.now()
	distanceKm := geo.HaversineKm(ride.Pickup.Lat, ride.Pickup.Lng, ride.Dropoff.Lat, ride.Dropoff.Lng)
	var durationMin float64
	if ride.StartedAt != nil {
		durationMin = now.Sub(*ride.StartedAt).Minutes()
	}
	breakdown, err := s.Fare.Calculate(distanceKm, durationMin, ride.ServiceType, ride.Deposit)
	if err != nil {
		return nil, models.FareBreakdown{}, fmt.Errorf("price ride: %w", err)
	}

	updated, err := s.transition(ctx, ride, models.StatusCompleted, storage.RideUpdate{
		CompletedAt: &now,
		FinalPrice:  &breakdown.Total,
	})
	if err != nil {
		return nil, models.FareBreakdown{}, err
	}
	s.releaseDriver(ctx, updated)
	observability.RidesCompleted.Inc()

	if s.Settlement != nil {
		if err := s.Settlement.CaptureFare(ctx, updated, breakdown.Total); err != nil && s.Logger != nil {
			s.Logger.Error("capture fare", "ride_id", updated.ID, "error", err)
		}
	}
	return updated, breakdown, nil
}

// Cancel evaluates the cancellation policy and, unless confirmation is
// required first, moves the ride to cancelled and releases the driver.
// A confirmation-required outcome leaves the ride untouched.
func (s *Service) Cancel(ctx context.Context, rideID string, actor cancel.Actor, forced bool) (*models.Ride, cancel.Outcome, error) {
	ride, err := s.Rides.Get(ctx, rideID)
	if err != nil {
		return nil, cancel.Outcome{}, err
	}
	if err := guard(ride, models.StatusCancelled); err != nil {
		return nil, cancel.Outcome{}, err
	}

	now := s.now()
	outcome := s.Policy.Evaluate(ride, actor, forced, now)
	if outcome.RequiresConfirmation {
		return ride, outcome, nil
	}

	fee := outcome.Fee
	updated, err := s.transition(ctx, ride, models.StatusCancelled, storage.RideUpdate{
		CancelledAt:     &now,
		CancellationFee: &fee,
	})
	if err != nil {
		return nil, cancel.Outcome{}, err
	}
	s.releaseDriver(ctx, updated)
	observability.RidesCancelled.Inc()

	if fee > 0 && s.Settlement != nil {
		if err := s.Settlement.CollectFee(ctx, updated, fee); err != nil && s.Logger != nil {
			s.Logger.Error("collect cancellation fee", "ride_id", updated.ID, "error", err)
		}
	}
	if s.Logger != nil {
		s.Logger.Info("ride cancelled", "ride_id", updated.ID, "actor", string(actor), "fee", fee)
	}
	return updated, outcome, nil
}

func (s *Service) Get(ctx context.Context, rideID string) (*models.Ride, error) {
	return s.Rides.Get(ctx, rideID)
}

// transition performs the conditional status swap and reloads the ride so
// callers see the authoritative post-transition row.
func (s *Service) transition(ctx context.Context, ride *models.Ride, to models.RideStatus, upd storage.RideUpdate) (*models.Ride, error) {
	ok, err := s.Rides.UpdateStatusIf(ctx, ride.ID, ride.Status, to, upd)
	if err != nil {
		return nil, fmt.Errorf("update ride %s: %w", ride.ID, err)
	}
	if !ok {
		return nil, ErrConflict
	}
	updated, err := s.Rides.Get(ctx, ride.ID)
	if err != nil {
		return nil, err
	}
	if s.Events != nil {
		s.Events.RideStatusChanged(updated)
	}
	return updated, nil
}

// releaseDriver flips the assigned driver back to idle on ride completion or
// cancellation. A failed swap means the busy/idle invariant was already
// broken elsewhere; log and move on.
func (s *Service) releaseDriver(ctx context.Context, ride *models.Ride) {
	if ride.DriverID == "" {
		return
	}
	ok, err := s.Drivers.UpdateStatusIf(ctx, ride.DriverID, models.DriverBusy, models.DriverIdle)
	if err != nil && s.Logger != nil {
		s.Logger.Error("release driver", "driver_id", ride.DriverID, "error", err)
		return
	}
	if !ok && s.Logger != nil {
		s.Logger.Warn("driver was not busy at release", "driver_id", ride.DriverID, "ride_id", ride.ID)
	}
}

func guard(ride *models.Ride, to models.RideStatus) error {
	if ride.Status.Terminal() {
		return ErrRideTerminal
	}
	if !models.CanTransition(ride.Status, to) {
		return ErrInvalidTransition
	}
	return nil
}
