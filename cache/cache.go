// Package cache implements the validation cache: a concurrency-safe mapping
// from link keys to outcomes with single-flight computation and optional
// expiry.
package cache

import (
	"context"
	"time"

	"github.com/ejacobg/linkcheck/link"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Options configure a Cache.
type Options struct {
	// How long entries remain usable. Zero disables expiry.
	TTL time.Duration

	// Clock used to timestamp and expire entries. Defaults to the wall
	// clock.
	Clock clock.Clock

	// When false (the default), cancelled outcomes are returned to the
	// caller but not stored, since they describe the batch rather than the
	// target.
	CacheCancelled bool

	// Logger for store failures. Defaults to the logrus standard logger.
	Logger *logrus.Entry
}

// Cache deduplicates checks of the same target. Computations for
// different keys never block each other.
type Cache struct {
	store          Store
	ttl            time.Duration
	clk            clock.Clock
	cacheCancelled bool
	logger         *logrus.Entry

	flights singleflight.Group
}

// New creates a cache backed by store.
func New(store Store, opts Options) *Cache {
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Cache{
		store:          store,
		ttl:            opts.TTL,
		clk:            opts.Clock,
		cacheCancelled: opts.CacheCancelled,
		logger:         opts.Logger,
	}
}

// Peek returns the cached outcome for key, if a live entry exists.
func (c *Cache) Peek(key link.Key) (link.Outcome, bool) {
	entry, found, err := c.store.Get(key)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "err": err}).Warn("cache lookup failed")
		return link.Outcome{}, false
	}
	if !found {
		return link.Outcome{}, false
	}

	if entry.Expired(c.clk.Now()) {
		if err = c.store.DeleteStale(key, entry.CheckedAt); err != nil {
			c.logger.WithFields(logrus.Fields{"key": key, "err": err}).Warn("failed to drop expired cache entry")
		}
		return link.Outcome{}, false
	}
	return entry.Outcome, true
}

// GetOrCompute returns the cached outcome for key or runs compute to obtain
// it. At most one computation per key is in flight at any time; callers
// arriving while it runs wait for its outcome instead of starting their own.
//
// A caller whose ctx ends while waiting receives a Cancelled outcome. If the
// shared computation was itself cancelled (because the caller that started
// it gave up) but ctx is still live, the computation is retried once.
func (c *Cache) GetOrCompute(ctx context.Context, key link.Key, compute func(context.Context) link.Outcome) link.Outcome {
	for attempt := 0; ; attempt++ {
		if outcome, ok := c.Peek(key); ok {
			return outcome
		}

		resCh := c.flights.DoChan(string(key), func() (interface{}, error) {
			// Another flight may have finished between Peek and DoChan.
			if outcome, ok := c.Peek(key); ok {
				return outcome, nil
			}

			outcome := compute(ctx)
			c.put(key, outcome)
			return outcome, nil
		})

		select {
		case <-ctx.Done():
			return link.Invalid(link.Reason{Kind: link.Cancelled}, ctx.Err().Error())
		case res := <-resCh:
			outcome := res.Val.(link.Outcome)
			if outcome.IsCancelled() && ctx.Err() == nil && attempt == 0 {
				continue
			}
			return outcome
		}
	}
}

// Invalidate drops the entry for key. A computation already in flight for
// key is detached: later callers start a fresh one.
func (c *Cache) Invalidate(key link.Key) {
	c.flights.Forget(string(key))
	if err := c.store.Delete(key); err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "err": err}).Warn("cache invalidation failed")
	}
}

// Purge drops every entry.
func (c *Cache) Purge() error {
	return c.store.Purge()
}

func (c *Cache) put(key link.Key, outcome link.Outcome) {
	if outcome.IsCancelled() && !c.cacheCancelled {
		return
	}

	now := c.clk.Now()
	entry := Entry{Outcome: outcome, CheckedAt: now}
	if c.ttl > 0 {
		entry.ExpiresAt = now.Add(c.ttl)
	}

	if err := c.store.Put(key, entry); err != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "err": err}).Warn("failed to store cache entry")
	}
}
