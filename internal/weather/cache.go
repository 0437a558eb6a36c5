package weather

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL = 30 * time.Minute

	// retryAfter is how long a failed fetch is remembered before the
	// provider is asked again.
	retryAfter = time.Minute

	freshPrefix = "fresh:"
	lastPrefix  = "last:"
)

// Fetcher retrieves a report from the provider.
type Fetcher interface {
	Fetch(ctx context.Context, loc Location) (*Report, error)
}

// Cache serves reports from memory and refreshes them at most once per TTL
// per location. When a refresh fails it keeps serving the last good report.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	items   *gocache.Cache
	group   singleflight.Group
	now     func() time.Time
}

// NewCache creates a Cache. A ttl below one second falls back to DefaultTTL.
func NewCache(f Fetcher, ttl time.Duration) *Cache {
	if ttl < time.Second {
		ttl = DefaultTTL
	}
	return &Cache{
		fetcher: f,
		ttl:     ttl,
		items:   gocache.New(ttl, 2*ttl),
		now:     time.Now,
	}
}

// Get returns the report for loc. It never fails. Without any good report the
// result carries the provider error and no data. Concurrent misses for the
// same location share one fetch.
func (c *Cache) Get(ctx context.Context, loc Location) *Report {
	key := loc.key()
	if v, ok := c.items.Get(freshPrefix + key); ok {
		return v.(*Report)
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		// Shared by every waiter, so one caller's cancellation must not
		// fail the others.
		report, err := c.fetcher.Fetch(context.WithoutCancel(ctx), loc)
		if err == nil {
			c.items.Set(freshPrefix+key, report, c.ttl)
			c.items.Set(lastPrefix+key, report, gocache.NoExpiration)
			return report, nil
		}

		slog.Warn("weather fetch failed", "location", key, "error", err)
		fallback := &Report{
			Error:     err.Error(),
			FetchedAt: c.now().Format(time.RFC3339),
			Daily:     []Day{},
		}
		if last, ok := c.items.Get(lastPrefix + key); ok {
			fallback = last.(*Report)
		}
		c.items.Set(freshPrefix+key, fallback, min(retryAfter, c.ttl))
		return fallback, nil
	})
	return v.(*Report)
}
