package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/orbital-labs/orbital/internal/model"
	redisclient "github.com/orbital-labs/orbital/internal/redis"
)

// GrantStore persists pending device grants for the lifetime of the grant.
type GrantStore interface {
	Save(ctx context.Context, grant *model.DeviceGrant, ttl time.Duration) error
	FindByDeviceCode(ctx context.Context, deviceCode string) (*model.DeviceGrant, error)
	FindByUserCode(ctx context.Context, userCode string) (*model.DeviceGrant, error)
	Update(ctx context.Context, grant *model.DeviceGrant) error
	Delete(ctx context.Context, grant *model.DeviceGrant) error
}

// PollLimiter enforces the grant's minimum polling interval per device code.
type PollLimiter interface {
	Allow(ctx context.Context, deviceCode string, interval time.Duration) (bool, error)
}

type redisGrantStore struct {
	redis *redisclient.Client
}

func NewRedisGrantStore(redis *redisclient.Client) GrantStore {
	return &redisGrantStore{redis: redis}
}

func (s *redisGrantStore) Save(ctx context.Context, grant *model.DeviceGrant, ttl time.Duration) error {
	data, err := json.Marshal(grant)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, redisclient.GrantKey(grant.DeviceCode), data, ttl)
	pipe.Set(ctx, redisclient.UserCodeKey(grant.UserCode), grant.DeviceCode, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisGrantStore) FindByDeviceCode(ctx context.Context, deviceCode string) (*model.DeviceGrant, error) {
	data, err := s.redis.Get(ctx, redisclient.GrantKey(deviceCode)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var grant model.DeviceGrant
	if err := json.Unmarshal(data, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func (s *redisGrantStore) FindByUserCode(ctx context.Context, userCode string) (*model.DeviceGrant, error) {
	deviceCode, err := s.redis.Get(ctx, redisclient.UserCodeKey(userCode)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.FindByDeviceCode(ctx, deviceCode)
}

func (s *redisGrantStore) Update(ctx context.Context, grant *model.DeviceGrant) error {
	data, err := json.Marshal(grant)
	if err != nil {
		return err
	}
	// KEEPTTL: the grant's remaining lifetime is unchanged by status updates
	return s.redis.Set(ctx, redisclient.GrantKey(grant.DeviceCode), data, goredis.KeepTTL).Err()
}

func (s *redisGrantStore) Delete(ctx context.Context, grant *model.DeviceGrant) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, redisclient.GrantKey(grant.DeviceCode))
	pipe.Del(ctx, redisclient.UserCodeKey(grant.UserCode))
	_, err := pipe.Exec(ctx)
	return err
}

type redisPollLimiter struct {
	redis *redisclient.Client
}

func NewRedisPollLimiter(redis *redisclient.Client) PollLimiter {
	return &redisPollLimiter{redis: redis}
}

// Allow returns false when the device code was already polled within the
// interval. SET NX with the interval as TTL makes the check atomic.
func (l *redisPollLimiter) Allow(ctx context.Context, deviceCode string, interval time.Duration) (bool, error) {
	return l.redis.SetNX(ctx, redisclient.PollKey(deviceCode), 1, interval).Result()
}
