package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-hailing/internal/models"
)

type flakyIndex struct {
	mu       sync.Mutex
	failures int
	upserts  []models.Driver
}

func (f *flakyIndex) Upsert(_ context.Context, d models.Driver) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("redis timeout")
	}
	f.upserts = append(f.upserts, d)
	return nil
}

func TestUpdateIndexWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	idx := &flakyIndex{failures: 2}
	sample := models.LocationSample{DriverID: "d1", Lat: 25.03, Lng: 121.56}

	err := updateIndexWithRetry(context.Background(), idx, sample)
	require.NoError(t, err)
	require.Len(t, idx.upserts, 1)
	assert.Equal(t, "d1", idx.upserts[0].ID)
	require.NotNil(t, idx.upserts[0].Loc)
	assert.Equal(t, 25.03, idx.upserts[0].Loc.Lat)
}

func TestUpdateIndexWithRetryGivesUp(t *testing.T) {
	idx := &flakyIndex{failures: maxWriteAttempts + 1}

	err := updateIndexWithRetry(context.Background(), idx, models.LocationSample{DriverID: "d1"})
	assert.Error(t, err)
	assert.Empty(t, idx.upserts)
}

func TestUpdateIndexWithRetryHonorsContext(t *testing.T) {
	idx := &flakyIndex{failures: maxWriteAttempts}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := updateIndexWithRetry(ctx, idx, models.LocationSample{DriverID: "d1"})
	assert.ErrorIs(t, err, context.Canceled)
}
