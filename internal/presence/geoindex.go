package presence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/ridedispatch/internal/booking/domain"
)

var errInvalidGeoResult = errors.New("invalid geo search result")

// RedisGeoIndex keeps a spatial index of driver positions so rider apps can
// be shown nearby drivers. It is fed from the presence stream.
type RedisGeoIndex struct {
	client redis.Cmdable
	key    string
}

// NewRedisGeoIndex constructs a Redis-backed geo index.
func NewRedisGeoIndex(client redis.Cmdable, key string) *RedisGeoIndex {
	if key == "" {
		key = "drivers:geo"
	}
	return &RedisGeoIndex{client: client, key: key}
}

// Upsert stores the driver's latest position. Offline drivers are removed
// from the index instead.
func (r *RedisGeoIndex) Upsert(ctx context.Context, driverID uuid.UUID, status domain.DriverStatus, point domain.GeoPoint) error {
	if r == nil || r.client == nil {
		return nil
	}
	if status == domain.DriverOffline {
		if err := r.client.ZRem(ctx, r.key, driverID.String()).Err(); err != nil {
			return fmt.Errorf("redis zrem: %w", err)
		}
		return nil
	}
	err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Name:      driverID.String(),
		Longitude: point.Lng,
		Latitude:  point.Lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis geoadd: %w", err)
	}
	return nil
}

// Nearby returns up to limit driver ids sorted by distance to the point.
func (r *RedisGeoIndex) Nearby(ctx context.Context, point domain.GeoPoint, radiusKM float64, limit int) ([]uuid.UUID, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("redis geo index not configured")
	}

	query := &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  point.Lng,
			Latitude:   point.Lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}

	results, err := r.client.GeoSearchLocation(ctx, r.key, query).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geosearch: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(results))
	for _, res := range results {
		id, err := uuid.Parse(res.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", errInvalidGeoResult, res.Name)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
