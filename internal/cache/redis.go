package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis"
)

// RedisConfig holds connection settings for a shared cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Redis is a Cache backed by a redis server.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(conf RedisConfig) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     conf.Addr,
			Password: conf.Password,
			DB:       conf.DB,
		}),
		prefix: conf.Prefix,
		ttl:    conf.TTL,
	}
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.WithContext(ctx).Ping().Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.WithContext(ctx).Get(r.prefix + key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.WithContext(ctx).Set(r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Namespace returns a cache sharing r's connection whose keys are further
// prefixed with prefix. Close the parent, not the namespace.
func (r *Redis) Namespace(prefix string) *Redis {
	return &Redis{
		client: r.client,
		prefix: r.prefix + prefix,
		ttl:    r.ttl,
	}
}
