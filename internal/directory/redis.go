package directory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/ridedispatch/internal/booking/domain"
)

const defaultStatusKey = "drivers:status"

// RedisDirectory stores driver presence in a Redis hash keyed by driver id so
// the dispatch and presence services share one live view of the fleet.
type RedisDirectory struct {
	client redis.Cmdable
	key    string
}

// NewRedisDirectory constructs a Redis-backed directory.
func NewRedisDirectory(client redis.Cmdable, key string) *RedisDirectory {
	if key == "" {
		key = defaultStatusKey
	}
	return &RedisDirectory{client: client, key: key}
}

// SetStatus writes the driver's status field.
func (r *RedisDirectory) SetStatus(ctx context.Context, driverID uuid.UUID, status domain.DriverStatus) error {
	if err := r.client.HSet(ctx, r.key, driverID.String(), string(status)).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// ListOnline returns online drivers sorted by id. Redis hashes have no
// iteration order, so the sort keeps candidate selection deterministic.
func (r *RedisDirectory) ListOnline(ctx context.Context) ([]uuid.UUID, error) {
	entries, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	var raw []string
	for id, status := range entries {
		if domain.DriverStatus(status) == domain.DriverOnline {
			raw = append(raw, id)
		}
	}
	sort.Strings(raw)
	online := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid driver id %q: %w", s, err)
		}
		online = append(online, id)
	}
	onlineDrivers.Set(float64(len(online)))
	return online, nil
}
