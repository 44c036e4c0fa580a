package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // Defaults to "aegis:session:"
	TTL       time.Duration
}

// RedisStore keeps sessions as JSON values whose Redis TTL matches the
// session expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a store. The connection is established lazily.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "aegis:session:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

// Ping checks connectivity; used by readiness checks.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Create implements Store.
func (r *RedisStore) Create(ctx context.Context, userID, role string) (*Session, error) {
	s, err := newSession(userID, role, r.now(), r.ttl)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), data, r.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return s, nil
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	// Redis expiry has second granularity.
	if s.Expired(r.now()) {
		return nil, ErrExpired
	}
	return &s, nil
}

// Revoke implements Store.
func (r *RedisStore) Revoke(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}
