package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// MemoryStore implements all three stores behind a single mutex, which makes
// the conditional updates trivially atomic. Used by tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	riders  map[string]models.Rider
	drivers map[string]models.Driver
	rides   map[string]models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		riders:  make(map[string]models.Rider),
		drivers: make(map[string]models.Driver),
		rides:   make(map[string]models.Ride),
	}
}

// Riders, Drivers and Rides expose the per-entity store views so callers can
// depend on the narrow interfaces.
func (m *MemoryStore) Riders() RiderStore   { return (*memoryRiders)(m) }
func (m *MemoryStore) Drivers() DriverStore { return (*memoryDrivers)(m) }
func (m *MemoryStore) Rides() RideStore     { return (*memoryRides)(m) }

type memoryRiders MemoryStore

func (m *memoryRiders) Get(_ context.Context, id string) (*models.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.riders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRider(r), nil
}

func (m *memoryRiders) Put(_ context.Context, r *models.Rider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riders[r.ID] = *cloneRider(*r)
	return nil
}

func (m *memoryRiders) SetLocation(_ context.Context, id string, loc models.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.riders[id]
	if !ok {
		return ErrNotFound
	}
	r.Loc = &models.Coord{Lat: loc.Lat, Lng: loc.Lng}
	r.Updated = time.Now()
	m.riders[id] = r
	return nil
}

type memoryDrivers MemoryStore

func (m *memoryDrivers) Get(_ context.Context, id string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDriver(d), nil
}

func (m *memoryDrivers) Put(_ context.Context, d *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = *cloneDriver(*d)
	return nil
}

func (m *memoryDrivers) SetLocation(_ context.Context, id string, loc models.Coord, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Loc = &models.Coord{Lat: loc.Lat, Lng: loc.Lng}
	d.Updated = at
	m.drivers[id] = d
	return nil
}

func (m *memoryDrivers) UpdateStatusIf(_ context.Context, id string, from, to models.DriverStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return false, ErrNotFound
	}
	if d.Status != from {
		return false, nil
	}
	d.Status = to
	d.Updated = time.Now()
	m.drivers[id] = d
	return true, nil
}

type memoryRides MemoryStore

func (m *memoryRides) Create(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = *cloneRide(*r)
	return nil
}

func (m *memoryRides) Get(_ context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRide(r), nil
}

func (m *memoryRides) UpdateStatusIf(_ context.Context, id string, from, to models.RideStatus, upd RideUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	applyUpdate(&r, upd)
	r.UpdatedAt = time.Now()
	m.rides[id] = r
	return true, nil
}

func applyUpdate(r *models.Ride, upd RideUpdate) {
	if upd.DriverArrivedAt != nil {
		t := *upd.DriverArrivedAt
		r.DriverArrivedAt = &t
	}
	if upd.AcceptedAt != nil {
		t := *upd.AcceptedAt
		r.AcceptedAt = &t
	}
	if upd.StartedAt != nil {
		t := *upd.StartedAt
		r.StartedAt = &t
	}
	if upd.CompletedAt != nil {
		t := *upd.CompletedAt
		r.CompletedAt = &t
	}
	if upd.CancelledAt != nil {
		t := *upd.CancelledAt
		r.CancelledAt = &t
	}
	if upd.FinalPrice != nil {
		v := *upd.FinalPrice
		r.FinalPrice = &v
	}
	if upd.CancellationFee != nil {
		v := *upd.CancellationFee
		r.CancellationFee = &v
	}
}

// clone helpers keep callers from mutating store-owned pointers.

func cloneRider(r models.Rider) *models.Rider {
	if r.Loc != nil {
		loc := *r.Loc
		r.Loc = &loc
	}
	return &r
}

func cloneDriver(d models.Driver) *models.Driver {
	if d.Loc != nil {
		loc := *d.Loc
		d.Loc = &loc
	}
	return &d
}

func cloneRide(r models.Ride) *models.Ride {
	r.DriverArrivedAt = cloneTime(r.DriverArrivedAt)
	r.AcceptedAt = cloneTime(r.AcceptedAt)
	r.StartedAt = cloneTime(r.StartedAt)
	r.CompletedAt = cloneTime(r.CompletedAt)
	r.CancelledAt = cloneTime(r.CancelledAt)
	r.FinalPrice = cloneInt64(r.FinalPrice)
	r.CancellationFee = cloneInt64(r.CancellationFee)
	return &r
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
