package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "authz:effective:version"

// Cache wraps Redis based caching of effective permission sets with
// versioning controls. Every assignment mutation bumps the version, which
// orphans all previously cached sets at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// Bump invalidates all cached sets by advancing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *Cache) buildKey(ctx context.Context, userID uuid.UUID) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("authz:effective:%s:%d", userID, ver), nil
}

// FetchSet loads a cached effective set or populates it using the loader.
// Redis unavailability degrades to a direct computation; the query path
// must never fail because the cache is down.
func (c *Cache) FetchSet(ctx context.Context, userID uuid.UUID, loader func(context.Context) (EffectiveSet, error)) (EffectiveSet, error) {
	if loader == nil {
		return EffectiveSet{}, errors.New("resolver: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.buildKey(ctx, userID)
	if err != nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var set EffectiveSet
		if unmarshalErr := json.Unmarshal(payload, &set); unmarshalErr == nil {
			return normalize(set), nil
		}
	} else if err != redis.Nil {
		return loader(ctx)
	}
	set, err := loader(ctx)
	if err != nil {
		return EffectiveSet{}, err
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return EffectiveSet{}, err
	}
	// Best effort: a failed store still returns the computed set.
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	return set, nil
}

// normalize restores non-nil maps after JSON round trips.
func normalize(set EffectiveSet) EffectiveSet {
	if set.Allowed == nil {
		set.Allowed = make(map[string]bool)
	}
	if set.Denied == nil {
		set.Denied = make(map[string]bool)
	}
	if set.Sources == nil {
		set.Sources = make(map[string]Source)
	}
	return set
}
