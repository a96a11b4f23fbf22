package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hurttlocker/leasebot/internal/lead"
)

// DefaultKeyPrefix namespaces session keys in a shared Redis.
const DefaultKeyPrefix = "leasebot:session:"

// RedisStore keeps JSON-encoded profiles in Redis so several processes can
// serve the same conversations.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. A ttl of 0 keeps keys forever.
func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Create(ctx context.Context, id string) (lead.Profile, error) {
	p := lead.NewProfile(id)
	if err := r.Put(ctx, p); err != nil {
		return lead.Profile{}, err
	}
	return p, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (lead.Profile, error) {
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return lead.Profile{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return lead.Profile{}, fmt.Errorf("get %q: %w", id, err)
	}
	var p lead.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return lead.Profile{}, fmt.Errorf("decode %q: %w", id, err)
	}
	return p, nil
}

func (r *RedisStore) Put(ctx context.Context, p lead.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %q: %w", p.SessionID, err)
	}
	if err := r.rdb.Set(ctx, r.key(p.SessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("put %q: %w", p.SessionID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	return nil
}
