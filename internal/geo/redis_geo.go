package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hailing/internal/models"
)

// RedisIndex implements Index using Redis GEO commands plus a metadata hash
// per driver for status/rating/name.
type RedisIndex struct {
	client *redis.Client
	key    string
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key}
}

// NewRedisIndexWithClient wires an existing client, used when the process
// already holds one.
func NewRedisIndexWithClient(c *redis.Client, key string) *RedisIndex {
	return &RedisIndex{client: c, key: key}
}

func (r *RedisIndex) Upsert(ctx context.Context, d models.Driver) error {
	if d.Loc != nil {
		err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
			Longitude: d.Loc.Lng,
			Latitude:  d.Loc.Lat,
			Name:      d.ID,
		}).Err()
		if err != nil {
			return err
		}
	}
	return r.client.HSet(ctx, metaKey(d.ID), map[string]interface{}{
		"status":  string(d.Status),
		"rating":  fmt.Sprintf("%f", d.Rating),
		"name":    d.Name,
		"updated": time.Now().UTC().Format(time.RFC3339),
	}).Err()
}

func (r *RedisIndex) Remove(ctx context.Context, driverID string) error {
	if err := r.client.ZRem(ctx, r.key, driverID).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, metaKey(driverID)).Err()
}

func (r *RedisIndex) Nearby(ctx context.Context, lat, lng float64, limit int) ([]models.Driver, error) {
	res, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     50,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Driver, 0, len(res))
	for _, g := range res {
		d := models.Driver{ID: g.Name, Loc: &models.Coord{Lat: g.Latitude, Lng: g.Longitude}}
		m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result()
		if err != nil {
			return nil, err
		}
		d.Status = models.DriverStatus(m["status"])
		d.Name = m["name"]
		if v, ok := m["rating"]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				d.Rating = f
			}
		}
		if d.Status != models.DriverIdle {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *RedisIndex) Close() error { return r.client.Close() }

func metaKey(id string) string { return "driver:meta:" + id }
