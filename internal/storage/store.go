package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

var ErrNotFound = errors.New("not found")

// RideUpdate carries the optional field writes applied together with a
// status transition. Nil fields are left untouched.
type RideUpdate struct {
	DriverArrivedAt *time.Time
	AcceptedAt      *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	FinalPrice      *int64
	CancellationFee *int64
}

// RiderStore persists riders. Riders are never deleted here; registration
// and identity live outside this core.
type RiderStore interface {
	Get(ctx context.Context, id string) (*models.Rider, error)
	Put(ctx context.Context, r *models.Rider) error
	SetLocation(ctx context.Context, id string, loc models.Coord) error
}

// DriverStore persists drivers. UpdateStatusIf is the compare-and-swap
// primitive backing driver reservation: it succeeds only when the driver's
// status still equals from, and reports whether the swap happened.
type DriverStore interface {
	Get(ctx context.Context, id string) (*models.Driver, error)
	Put(ctx context.Context, d *models.Driver) error
	SetLocation(ctx context.Context, id string, loc models.Coord, at time.Time) error
	UpdateStatusIf(ctx context.Context, id string, from, to models.DriverStatus) (bool, error)
}

// RideStore persists rides. Rides are never physically deleted; terminal
// states are retained for history. UpdateStatusIf is the same conditional
// write primitive as for drivers, extended with the field writes that belong
// to the transition.
type RideStore interface {
	Create(ctx context.Context, r *models.Ride) error
	Get(ctx context.Context, id string) (*models.Ride, error)
	UpdateStatusIf(ctx context.Context, id string, from, to models.RideStatus, upd RideUpdate) (bool, error)
}
