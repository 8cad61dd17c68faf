package profile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
)

// DefaultFetchTimeout bounds a single profile fetch.
const DefaultFetchTimeout = 10 * time.Second

// Config configures a Cache.
type Config struct {
	// FetchTimeout bounds each fetch. Zero disables the timeout.
	FetchTimeout time.Duration
	// MaxConcurrency caps parallel fetches per Resolve. Zero means one
	// goroutine per missing id.
	MaxConcurrency int
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{FetchTimeout: DefaultFetchTimeout}
}

// Cache is an unbounded write-through memo of profiles.
// A resolved profile is never re-fetched or invalidated.
// Thread-safe.
type Cache struct {
	fetcher Fetcher
	config  Config
	logger  *slog.Logger
	metrics *Metrics

	mu       sync.RWMutex
	profiles map[string]broadcast.Profile

	flights singleflight.Group
}

// NewCache creates a Cache. metrics may be nil.
func NewCache(fetcher Fetcher, cfg Config, logger *slog.Logger, metrics *Metrics) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		fetcher:  fetcher,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		profiles: make(map[string]broadcast.Profile),
	}
}

// Get returns a memoized profile.
func (c *Cache) Get(id string) (broadcast.Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[id]
	return p, ok
}

// Put memoizes p, replacing nothing that is already cached.
func (c *Cache) Put(p broadcast.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.profiles[p.ID]; !ok {
		c.profiles[p.ID] = p
		c.observeSizeLocked()
	}
}

// Len returns the number of memoized profiles.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.profiles)
}

// Missing returns the distinct ids not yet memoized, in first-seen order.
func (c *Cache) Missing(ids []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{}, len(ids))
	var missing []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := c.profiles[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Resolve returns the profiles of ids. Cached profiles are returned directly;
// missing ones are fetched in parallel and Resolve waits for every fetch to
// finish. Ids whose fetch fails are absent from the result. Canceling ctx
// cancels the in-flight fetches.
func (c *Cache) Resolve(ctx context.Context, ids []string) map[string]broadcast.Profile {
	result := make(map[string]broadcast.Profile, len(ids))

	c.mu.RLock()
	for _, id := range ids {
		if p, ok := c.profiles[id]; ok {
			result[id] = p
		}
	}
	c.mu.RUnlock()
	if c.metrics != nil && len(result) > 0 {
		c.metrics.hits.Add(float64(len(result)))
	}

	missing := c.Missing(ids)
	if len(missing) == 0 {
		return result
	}
	if c.metrics != nil {
		c.metrics.misses.Add(float64(len(missing)))
	}

	var (
		g     errgroup.Group
		resMu sync.Mutex
	)
	if c.config.MaxConcurrency > 0 {
		g.SetLimit(c.config.MaxConcurrency)
	}
	for _, id := range missing {
		g.Go(func() error {
			p, err := c.fetch(ctx, id)
			if err != nil {
				c.logger.Warn("profile resolution failed", "user_id", id, "error", err)
				return nil
			}
			resMu.Lock()
			result[id] = p
			resMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result
}

// fetch loads id once across concurrent callers and memoizes success.
func (c *Cache) fetch(ctx context.Context, id string) (broadcast.Profile, error) {
	ch := c.flights.DoChan(id, func() (interface{}, error) {
		if p, ok := c.Get(id); ok {
			return p, nil
		}

		fetchCtx := ctx
		if c.config.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, c.config.FetchTimeout)
			defer cancel()
		}

		start := time.Now()
		p, err := c.fetcher.FetchProfile(fetchCtx, id)
		c.observeFetch(time.Since(start), err)
		if err != nil {
			return nil, err
		}
		if p.ID == "" {
			p.ID = id
		}

		c.mu.Lock()
		c.profiles[id] = p
		c.observeSizeLocked()
		c.mu.Unlock()
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return broadcast.Profile{}, res.Err
		}
		return res.Val.(broadcast.Profile), nil
	case <-ctx.Done():
		return broadcast.Profile{}, ctx.Err()
	}
}

func (c *Cache) observeFetch(d time.Duration, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.fetchDuration.Observe(d.Seconds())
	switch {
	case err == nil:
		c.metrics.fetches.WithLabelValues(FetchSuccess).Inc()
	case errors.Is(err, ErrProfileNotFound):
		c.metrics.fetches.WithLabelValues(FetchNotFound).Inc()
	case errors.Is(err, context.DeadlineExceeded):
		c.metrics.fetches.WithLabelValues(FetchTimeout).Inc()
	default:
		c.metrics.fetches.WithLabelValues(FetchError).Inc()
	}
}

func (c *Cache) observeSizeLocked() {
	if c.metrics != nil {
		c.metrics.size.Set(float64(len(c.profiles)))
	}
}
