package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Store is the key/value surface shared by the Redis and SQL backends. Rate
// limiting uses IncrementWithTTL; unread counters use the rest.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

const (
	unreadCountKeyBase      = "notifications:unread:"
	unreadGenerationKeyBase = "notifications:unread:gen:"

	// minGenerationTTL keeps a user's generation alive well past any cached count.
	minGenerationTTL = 24 * time.Hour
)

// UnreadCounters caches per-user unread notification counts. Every
// invalidation bumps the user's generation, and a cached count is only served
// when it was stored under the current generation, so a count computed before
// a concurrent write can never be read back after it.
type UnreadCounters struct {
	store         Store
	ttl           time.Duration
	generationTTL time.Duration
}

// NewUnreadCounters caches counts in store for ttl.
func NewUnreadCounters(store Store, ttl time.Duration) (*UnreadCounters, error) {
	if store == nil {
		return nil, errors.New("cache: unread counters require a store")
	}
	if ttl <= 0 {
		return nil, errors.New("cache: unread counter ttl must be positive")
	}
	generationTTL := 10 * ttl
	if generationTTL < minGenerationTTL {
		generationTTL = minGenerationTTL
	}
	return &UnreadCounters{store: store, ttl: ttl, generationTTL: generationTTL}, nil
}

// Generation returns the user's current generation. Callers read it before
// counting and hand it back to Fill.
func (c *UnreadCounters) Generation(ctx context.Context, userID string) (int64, error) {
	raw, ok, err := c.store.Get(ctx, unreadGenerationKeyBase+userID)
	if err != nil || !ok {
		return 0, err
	}
	generation, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, nil
	}
	return generation, nil
}

// Lookup returns the cached count when one was stored under generation.
func (c *UnreadCounters) Lookup(ctx context.Context, userID string, generation int64) (int64, bool, error) {
	raw, ok, err := c.store.Get(ctx, unreadCountKeyBase+userID)
	if err != nil || !ok {
		return 0, false, err
	}
	stored, count, valid := decodeUnread(raw)
	if !valid || stored != generation {
		return 0, false, nil
	}
	return count, true, nil
}

// Fill stores count as computed under generation.
func (c *UnreadCounters) Fill(ctx context.Context, userID string, generation, count int64) error {
	return c.store.Set(ctx, unreadCountKeyBase+userID, encodeUnread(generation, count), c.ttl)
}

// Invalidate retires every count cached for the user, including ones still
// being computed.
func (c *UnreadCounters) Invalidate(ctx context.Context, userID string) error {
	if _, _, err := c.store.IncrementWithTTL(ctx, unreadGenerationKeyBase+userID, c.generationTTL); err != nil {
		return err
	}
	return c.store.Delete(ctx, unreadCountKeyBase+userID)
}

func encodeUnread(generation, count int64) []byte {
	return []byte(strconv.FormatInt(generation, 10) + ":" + strconv.FormatInt(count, 10))
}

func decodeUnread(raw []byte) (generation, count int64, ok bool) {
	gen, value, found := strings.Cut(string(raw), ":")
	if !found {
		return 0, 0, false
	}
	var err error
	if generation, err = strconv.ParseInt(gen, 10, 64); err != nil {
		return 0, 0, false
	}
	if count, err = strconv.ParseInt(value, 10, 64); err != nil {
		return 0, 0, false
	}
	return generation, count, true
}
