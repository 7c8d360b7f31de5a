// Package dispatch matches a ride request to the nearest available driver
// and reserves that driver atomically against the store.
package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/storage"
)

var (
	// ErrNoDriverAvailable is a business negative, not a failure: zero idle
	// drivers, or every candidate was reserved by a concurrent dispatch.
	ErrNoDriverAvailable = errors.New("no driver available")

	// ErrRiderLocationMissing rejects dispatch for riders who have never
	// reported a position.
	ErrRiderLocationMissing = errors.New("rider location missing")
)

type Request struct {
	RiderID     string
	Dropoff     models.Coord
	ServiceType models.ServiceType
	Deposit     int64
}

type Service struct {
	Geo         geo.Index
	Riders      storage.RiderStore
	Drivers     storage.DriverStore
	Rides       storage.RideStore
	SearchLimit int
	MaxRetries  int // lost reservation races tolerated before giving up
	Logger      *slog.Logger
}

// Dispatch finds the idle driver nearest to the rider and flips them to busy
// with a conditional update, so two concurrent calls can never reserve the
// same driver. A lost race moves on to the next candidate, up to MaxRetries.
func (s *Service) Dispatch(ctx context.Context, req Request) (*models.Ride, *models.Driver, error) {
	start := time.Now()
	defer func() { observability.DispatchLatency.Observe(time.Since(start).Seconds()) }()

	rider, err := s.Riders.Get(ctx, req.RiderID)
	if err != nil {
		return nil, nil, fmt.Errorf("load rider: %w", err)
	}
	if rider.Loc == nil {
		return nil, nil, ErrRiderLocationMissing
	}
	if req.ServiceType == "" {
		req.ServiceType = models.ServiceStandard
	}

	limit := s.SearchLimit
	if limit <= 0 {
		limit = 8
	}
	cands, err := s.Geo.Nearby(ctx, rider.Loc.Lat, rider.Loc.Lng, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("nearby lookup: %w", err)
	}
	cands = s.rank(*rider.Loc, cands)
	if len(cands) == 0 {
		observability.DispatchNoDriver.Inc()
		return nil, nil, ErrNoDriverAvailable
	}

	racesLost := 0
	for _, cand := range cands {
		ok, err := s.Drivers.UpdateStatusIf(ctx, cand.ID, models.DriverIdle, models.DriverBusy)
		if err != nil {
			return nil, nil, fmt.Errorf("reserve driver %s: %w", cand.ID, err)
		}
		if !ok {
			// another dispatch got there first
			observability.DispatchRaceLost.Inc()
			racesLost++
			if racesLost > s.MaxRetries {
				break
			}
			continue
		}
		ride, err := s.createRide(ctx, rider, cand, req)
		if err != nil {
			// release the reservation so the driver is not stranded busy
			if _, rbErr := s.Drivers.UpdateStatusIf(ctx, cand.ID, models.DriverBusy, models.DriverIdle); rbErr != nil && s.Logger != nil {
				s.Logger.Error("release reserved driver", "driver_id", cand.ID, "error", rbErr)
			}
			return nil, nil, fmt.Errorf("create ride: %w", err)
		}
		observability.DispatchesTotal.Inc()
		if s.Logger != nil {
			s.Logger.Info("ride dispatched",
				"ride_id", ride.ID, "rider_id", rider.ID, "driver_id", cand.ID,
				"races_lost", racesLost)
		}
		driver := cand
		driver.Status = models.DriverBusy
		return ride, &driver, nil
	}

	observability.DispatchNoDriver.Inc()
	return nil, nil, ErrNoDriverAvailable
}

// rank keeps idle candidates with a known position, ordered by great-circle
// distance to the rider with ties broken by the lower driver id so dispatch
// is deterministic across runs and index backends.
func (s *Service) rank(from models.Coord, cands []models.Driver) []models.Driver {
	type scored struct {
		d    models.Driver
		dist float64
	}
	list := make([]scored, 0, len(cands))
	for _, d := range cands {
		if d.Status != models.DriverIdle || d.Loc == nil {
			continue
		}
		list = append(list, scored{d, geo.HaversineKm(from.Lat, from.Lng, d.Loc.Lat, d.Loc.Lng)})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].dist != list[j].dist {
			return list[i].dist < list[j].dist
		}
		return list[i].d.ID < list[j].d.ID
	})
	out := make([]models.Driver, 0, len(list))
	for _, sc := range list {
		out = append(out, sc.d)
	}
	return out
}

func (s *Service) createRide(ctx context.Context, rider *models.Rider, driver models.Driver, req Request) (*models.Ride, error) {
	now := time.Now()
	ride := &models.Ride{
		ID:          newID(),
		RiderID:     rider.ID,
		DriverID:    driver.ID,
		Status:      models.StatusAssigned,
		RiderName:   rider.Name,
		DriverName:  driver.Name,
		Pickup:      *rider.Loc,
		Dropoff:     req.Dropoff,
		ServiceType: req.ServiceType,
		Deposit:     req.Deposit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Rides.Create(ctx, ride); err != nil {
		return nil, err
	}
	return ride, nil
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
