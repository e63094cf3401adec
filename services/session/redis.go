// Package sessionsvc stores the short-lived state of multi-step forms.
package sessionsvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/classnote/classnote/core"
)

type redisStore struct {
	client *goredis.Client
	prefix string
}

var _ core.SessionStore = (*redisStore)(nil)

// NewRedisClient connects to the configured Redis server and checks that it answers.
func NewRedisClient(ctx context.Context, conf *core.Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func NewRedisStore(client *goredis.Client, conf *core.Config) core.SessionStore {
	return &redisStore{client: client, prefix: conf.AppName + ":"}
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Wrap(s.client.Set(ctx, s.prefix+key, value, ttl).Err(), "redis set")
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, core.ErrSessionMissing
		}
		return nil, errors.Wrap(err, "redis get")
	}
	return val, nil
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.prefix + key
	}
	return errors.Wrap(s.client.Del(ctx, prefixed...).Err(), "redis del")
}

func (s *redisStore) SetField(ctx context.Context, key, field string, value []byte, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.prefix+key, field, value)
		if ttl > 0 {
			pipe.Expire(ctx, s.prefix+key, ttl)
		}
		return nil
	})
	return errors.Wrap(err, "redis hset")
}

func (s *redisStore) Fields(ctx context.Context, key string) (map[string][]byte, error) {
	vals, err := s.client.HGetAll(ctx, s.prefix+key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis hgetall")
	}
	fields := make(map[string][]byte, len(vals))
	for field, val := range vals {
		fields[field] = []byte(val)
	}
	return fields, nil
}
