package promo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	codeKeyPrefix  = "promo:code:"
	usedKeyPrefix  = "promo:used:"
	usersKeyPrefix = "promo:users:"
	logKeyPrefix   = "promo:log:"
)

// RedisStore persists promo codes and usage in Redis. The global usage
// counter rides on INCR, so the never-exceed-usageLimit guarantee holds
// across service replicas.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore constructs the store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// PutCode registers a promo code (admin/seed path).
func (r *RedisStore) PutCode(ctx context.Context, code Code) error {
	code.Code = strings.ToUpper(code.Code)
	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal promo: %w", err)
	}
	if err := r.client.Set(ctx, codeKeyPrefix+code.Code, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set promo: %w", err)
	}
	return nil
}

// GetCode looks up a code.
func (r *RedisStore) GetCode(ctx context.Context, code string) (Code, error) {
	payload, err := r.client.Get(ctx, codeKeyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return Code{}, ErrCodeNotFound
	}
	if err != nil {
		return Code{}, fmt.Errorf("redis get promo: %w", err)
	}
	var promo Code
	if err := json.Unmarshal(payload, &promo); err != nil {
		return Code{}, fmt.Errorf("unmarshal promo: %w", err)
	}
	return promo, nil
}

// UsedCount returns the global redemption count.
func (r *RedisStore) UsedCount(ctx context.Context, code string) (int64, error) {
	count, err := r.client.Get(ctx, usedKeyPrefix+code).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get used count: %w", err)
	}
	return count, nil
}

// CountUserUsage counts redemptions by one user.
func (r *RedisStore) CountUserUsage(ctx context.Context, code string, uid uuid.UUID) (int64, error) {
	count, err := r.client.HGet(ctx, usersKeyPrefix+code, uid.String()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get user usage: %w", err)
	}
	return count, nil
}

// ReserveUsage claims one usage slot. INCR past the limit is rolled back with
// a DECR, so over-claims from concurrent redeemers cancel themselves out.
func (r *RedisStore) ReserveUsage(ctx context.Context, code string, limit int64) (bool, error) {
	count, err := r.client.Incr(ctx, usedKeyPrefix+code).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr used count: %w", err)
	}
	if count > limit {
		if err := r.client.Decr(ctx, usedKeyPrefix+code).Err(); err != nil {
			return false, fmt.Errorf("redis decr used count: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// RecordUsage bumps the per-user counter and appends to the redemption log.
func (r *RedisStore) RecordUsage(ctx context.Context, usage Usage) error {
	if err := r.client.HIncrBy(ctx, usersKeyPrefix+usage.Code, usage.UID.String(), 1).Err(); err != nil {
		return fmt.Errorf("redis record user usage: %w", err)
	}
	payload, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	if err := r.client.RPush(ctx, logKeyPrefix+usage.Code, payload).Err(); err != nil {
		return fmt.Errorf("redis append usage log: %w", err)
	}
	return nil
}
