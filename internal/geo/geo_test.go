package geo

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-hailing/internal/models"
)

func TestHaversineKm(t *testing.T) {
	assert.Equal(t, 0.0, HaversineKm(25.03, 121.56, 25.03, 121.56))

	// Taipei Main Station to Taipei 101, roughly 4 km
	d := HaversineKm(25.0478, 121.5170, 25.0340, 121.5645)
	assert.InDelta(t, 5.0, d, 1.0)

	// one degree of latitude is about 111 km
	d = HaversineKm(0, 0, 1, 0)
	assert.InDelta(t, 111.19, d, 0.1)
}

func idle(id string, lat, lng float64) models.Driver {
	return models.Driver{ID: id, Status: models.DriverIdle, Loc: &models.Coord{Lat: lat, Lng: lng}}
}

func TestMemoryIndexNearbyOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, idle("far", 1, 1)))
	require.NoError(t, idx.Upsert(ctx, idle("near", 0.01, 0.01)))
	require.NoError(t, idx.Upsert(ctx, idle("mid", 0.5, 0.5)))

	got, err := idx.Nearby(ctx, 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "near", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)
	assert.Equal(t, "far", got[2].ID)
}

func TestMemoryIndexNearbyTieBreakByID(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, idle("d2", 0.1, 0.1)))
	require.NoError(t, idx.Upsert(ctx, idle("d1", 0.1, 0.1)))

	got, err := idx.Nearby(ctx, 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d1", got[0].ID)
}

func TestMemoryIndexNearbyFilters(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, idle("ok", 0.1, 0.1)))
	require.NoError(t, idx.Upsert(ctx, models.Driver{ID: "busy", Status: models.DriverBusy, Loc: &models.Coord{Lat: 0.1, Lng: 0.1}}))
	require.NoError(t, idx.Upsert(ctx, models.Driver{ID: "nowhere", Status: models.DriverIdle}))

	got, err := idx.Nearby(ctx, 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
}

func TestMemoryIndexLimitAndRemove(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	for _, d := range []models.Driver{idle("a", 0.1, 0), idle("b", 0.2, 0), idle("c", 0.3, 0)} {
		require.NoError(t, idx.Upsert(ctx, d))
	}

	got, err := idx.Nearby(ctx, 0, 0, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, idx.Remove(ctx, "a"))
	got, err = idx.Nearby(ctx, 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
}

func TestHaversineSymmetry(t *testing.T) {
	a := HaversineKm(25.0, 121.5, 24.1, 120.6)
	b := HaversineKm(24.1, 120.6, 25.0, 121.5)
	assert.True(t, math.Abs(a-b) < 1e-9)
}
