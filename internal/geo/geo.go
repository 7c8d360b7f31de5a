package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// Index is the driver proximity lookup used by the dispatcher and the
// location pipeline. Nearby returns candidates ordered by distance; callers
// that need a deterministic tie-break re-sort with HaversineKm themselves.
type Index interface {
	Nearby(ctx context.Context, lat, lng float64, limit int) ([]models.Driver, error)
	Upsert(ctx context.Context, d models.Driver) error
	Remove(ctx context.Context, driverID string) error
}

// MemoryIndex keeps driver positions in a map. Good enough for tests and
// single-node runs; production uses RedisIndex.
type MemoryIndex struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{drivers: make(map[string]models.Driver)}
}

func (g *MemoryIndex) Upsert(_ context.Context, d models.Driver) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = time.Now()
	g.drivers[d.ID] = d
	return nil
}

func (g *MemoryIndex) Remove(_ context.Context, driverID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.drivers, driverID)
	return nil
}

// Nearby scans every idle driver with a known position. Naive; in prod use
// geo-hash or the Redis GEO backend.
func (g *MemoryIndex) Nearby(_ context.Context, lat, lng float64, limit int) ([]models.Driver, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		d    models.Driver
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, d := range g.drivers {
		if d.Status != models.DriverIdle || d.Loc == nil {
			continue
		}
		arr = append(arr, pair{d, HaversineKm(lat, lng, d.Loc.Lat, d.Loc.Lng)})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].dist != arr[j].dist {
			return arr[i].dist < arr[j].dist
		}
		return arr[i].d.ID < arr[j].d.ID
	})
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]models.Driver, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, arr[i].d)
	}
	return out, nil
}

// HaversineKm is the great-circle distance in kilometres on a spherical
// earth, radius 6371 km.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
