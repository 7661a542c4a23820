package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	appErr "ojassist/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the configuration for the Redis session backend.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Key:          "ojassist:session",
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

// RedisStore keeps the session blob under one Redis key that expires with the session.
type RedisStore struct {
	client *redis.Client
	key    string
	codec  Codec
}

func NewRedisStore(config *RedisConfig, codec Codec) (*RedisStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Addr == "" {
		return nil, fmt.Errorf("addr cannot be empty")
	}
	key := config.Key
	if key == "" {
		key = DefaultRedisConfig().Key
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
	return &RedisStore{client: client, key: key, codec: codec}, nil
}

func (s *RedisStore) Save(ctx context.Context, sess Session) error {
	blob, err := s.codec.Encode(sess)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "encode session failed")
	}
	ttl := time.Until(sess.AcquiredAt.Add(SessionTTL))
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.client.Set(ctx, s.key, blob, ttl).Err(); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "write session to redis failed")
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*Session, error) {
	blob, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.CacheError, "read session from redis failed")
	}
	return decodeOrMiss(ctx, s.codec, blob), nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "delete session from redis failed")
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
