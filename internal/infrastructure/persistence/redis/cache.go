// Package redis keeps the latest standings snapshot in Redis so the API
// can answer without a round trip to ejudge.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Config describes the Redis server holding the snapshot.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int

	// Timeout bounds dialing and every single command.
	Timeout time.Duration
}

// DefaultConfig targets a local Redis without auth.
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     6379,
		PoolSize: 4,
		Timeout:  3 * time.Second,
	}
}

// Addr is host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Options converts the configuration into go-redis options.
func (c Config) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.Timeout,
		ReadTimeout:  c.Timeout,
		WriteTimeout: c.Timeout,
	}
}

var (
	// ErrCacheMiss is returned when nothing is stored under the key.
	ErrCacheMiss = errors.New("cache: key not found")

	ErrCacheConnection = errors.New("cache: connection failed")
	ErrCacheEncoding   = errors.New("cache: encoding failed")
	ErrCacheNilValue   = errors.New("cache: value cannot be nil")
)

// Cache is a thin JSON layer over a go-redis client.
type Cache struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewCache connects and pings once. A failed ping closes the client.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(cfg.Options())

	c := &Cache{client: client, timeout: cfg.Timeout}
	if err := c.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheConnection, cfg.Addr(), err)
	}
	return c, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping is used by the readiness check.
func (c *Cache) Ping(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.client.Ping(ctx).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// JSON VALUES
// ══════════════════════════════════════════════════════════════════════════════

// setJSON stores value under key. A zero ttl keeps the key forever.
func (c *Cache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, max(ttl, 0)).Err()
}

// getJSON decodes the value under key into dest or returns ErrCacheMiss.
func (c *Cache) getJSON(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheEncoding, err)
	}
	return nil
}

func (c *Cache) del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func encode(value any) ([]byte, error) {
	if value == nil {
		return nil, ErrCacheNilValue
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheEncoding, err)
	}
	return data, nil
}
