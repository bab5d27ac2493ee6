package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ejacobg/linkcheck/cache"
	"github.com/ejacobg/linkcheck/inmem"
	"github.com/ejacobg/linkcheck/link"
	"github.com/juju/clock/testclock"
	"github.com/sirupsen/logrus"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(CacheTestSuite))

func Test(t *testing.T) {
	// Run all gocheck test-suites
	gc.TestingT(t)
}

type CacheTestSuite struct {
	clk   *testclock.Clock
	store *inmem.Store
	c     *cache.Cache
}

func (s *CacheTestSuite) SetUpTest(c *gc.C) {
	s.clk = testclock.NewClock(time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC))
	s.store = inmem.NewStore()
	s.c = cache.New(s.store, cache.Options{
		TTL:    time.Hour,
		Clock:  s.clk,
		Logger: quietLogger(),
	})
}

func (s *CacheTestSuite) TestComputeOnMiss(c *gc.C) {
	var calls int32
	compute := countingCompute(&calls, link.Valid())

	got := s.c.GetOrCompute(context.TODO(), "https://example.com/", compute)
	c.Assert(got, gc.DeepEquals, link.Valid())
	c.Assert(atomic.LoadInt32(&calls), gc.Equals, int32(1))

	// Warm cache.
	got = s.c.GetOrCompute(context.TODO(), "https://example.com/", compute)
	c.Assert(got, gc.DeepEquals, link.Valid())
	c.Assert(atomic.LoadInt32(&calls), gc.Equals, int32(1))

	peeked, found := s.c.Peek("https://example.com/")
	c.Assert(found, gc.Equals, true)
	c.Assert(peeked, gc.DeepEquals, link.Valid())
}

func (s *CacheTestSuite) TestSingleFlight(c *gc.C) {
	var calls int32
	release := make(chan struct{})
	want := link.Invalid(link.BadStatus(404), "")
	compute := func(context.Context) link.Outcome {
		atomic.AddInt32(&calls, 1)
		<-release
		return want
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]link.Outcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.c.GetOrCompute(context.TODO(), "https://example.com/missing", compute)
		}(i)
	}

	// Let some of the callers pile up behind the first computation.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	c.Assert(atomic.LoadInt32(&calls), gc.Equals, int32(1))
	for _, got := range results {
		c.Assert(got, gc.DeepEquals, want)
	}
}

func (s *CacheTestSuite) TestDifferentKeysDoNotBlock(c *gc.C) {
	release := make(chan struct{})
	defer close(release)

	go s.c.GetOrCompute(context.TODO(), "https://slow.example.com/", func(context.Context) link.Outcome {
		<-release
		return link.Valid()
	})

	done := make(chan link.Outcome, 1)
	go func() {
		done <- s.c.GetOrCompute(context.TODO(), "https://fast.example.com/", func(context.Context) link.Outcome {
			return link.Valid()
		})
	}()

	select {
	case got := <-done:
		c.Assert(got, gc.DeepEquals, link.Valid())
	case <-time.After(5 * time.Second):
		c.Fatal("computation for an unrelated key blocked")
	}
}

func (s *CacheTestSuite) TestExpiry(c *gc.C) {
	var calls int32
	compute := countingCompute(&calls, link.Valid())
	key := link.Key("https://example.com/")

	s.c.GetOrCompute(context.TODO(), key, compute)
	entry, found, err := s.store.Get(key)
	c.Assert(err, gc.IsNil)
	c.Assert(found, gc.Equals, true)
	c.Assert(entry.CheckedAt, gc.Equals, s.clk.Now())
	c.Assert(entry.ExpiresAt, gc.Equals, s.clk.Now().Add(time.Hour))

	s.clk.Advance(59 * time.Minute)
	s.c.GetOrCompute(context.TODO(), key, compute)
	c.Assert(atomic.LoadInt32(&calls), gc.Equals, int32(1))

	s.clk.Advance(time.Minute)
	_, found = s.c.Peek(key)
	c.Assert(found, gc.Equals, false, gc.Commentf("expected entry to expire"))
	_, found, _ = s.store.Get(key)
	c.Assert(found, gc.Equals, false, gc.Commentf("expected expired entry to be dropped from the store"))

	s.c.GetOrCompute(context.TODO(), key, compute)
	c.Assert(atomic.LoadInt32(&calls), gc.Equals, int32(2))
}

func (s *CacheTestSuite) TestNoExpiryWithoutTTL(c *gc.C) {
	s.c = cache.New(s.store, cache.Options{Clock: s.clk, Logger: quietLogger()})
	s.c.GetOrCompute(context.TODO(), "https://example.com/", func(context.Context) link.Outcome {
		return link.Valid()
	})

	s.clk.Advance(365 * 24 * time.Hour)
	_, found := s.c.Peek("https://example.com/")
	c.Assert(found, gc.Equals, true)
}

func (s *CacheTestSuite) TestCancelledOutcomesAreNotCached(c *gc.C) {
	var calls int32
	compute := countingCompute(&calls, link.Invalid(link.Reason{Kind: link.Cancelled}, "context canceled"))

	got := s.c.GetOrCompute(context.TODO(), "https://example.com/", compute)
	c.Assert(got.IsCancelled(), gc.Equals, true)

	// The caller's own context is still live so the cancelled result is
	// retried once before being handed back.
	c.Assert(atomic.LoadInt32(&calls), gc.Equals, int32(2))

	_, found := s.c.Peek("https://example.com/")
	c.Assert(found, gc.Equals, false)
}

func (s *CacheTestSuite) TestCancelledOutcomesCachedWhenRequested(c *gc.C) {
	s.c = cache.New(s.store, cache.Options{Clock: s.clk, CacheCancelled: true, Logger: quietLogger()})

	var calls int32
	compute := countingCompute(&calls, link.Invalid(link.Reason{Kind: link.Cancelled}, ""))
	s.c.GetOrCompute(context.TODO(), "https://example.com/", compute)

	_, found := s.c.Peek("https://example.com/")
	c.Assert(found, gc.Equals, true)
}

func (s *CacheTestSuite) TestWaiterCancellation(c *gc.C) {
	release := make(chan struct{})
	started := make(chan struct{})
	key := link.Key("https://slow.example.com/")

	leaderDone := make(chan link.Outcome, 1)
	go func() {
		leaderDone <- s.c.GetOrCompute(context.TODO(), key, func(context.Context) link.Outcome {
			close(started)
			<-release
			return link.Valid()
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.TODO())
	waiterDone := make(chan link.Outcome, 1)
	go func() {
		waiterDone <- s.c.GetOrCompute(ctx, key, func(context.Context) link.Outcome {
			c.Error("waiter should not run its own computation")
			return link.Valid()
		})
	}()
	cancel()

	select {
	case got := <-waiterDone:
		c.Assert(got.IsCancelled(), gc.Equals, true)
	case <-time.After(5 * time.Second):
		c.Fatal("cancelled waiter did not return")
	}

	close(release)
	c.Assert(<-leaderDone, gc.DeepEquals, link.Valid())
	_, found := s.c.Peek(key)
	c.Assert(found, gc.Equals, true)
}

func (s *CacheTestSuite) TestInvalidateAndPurge(c *gc.C) {
	var calls int32
	compute := countingCompute(&calls, link.Valid())

	s.c.GetOrCompute(context.TODO(), "https://a.example.com/", compute)
	s.c.GetOrCompute(context.TODO(), "https://b.example.com/", compute)
	c.Assert(s.store.Len(), gc.Equals, 2)

	s.c.Invalidate("https://a.example.com/")
	_, found := s.c.Peek("https://a.example.com/")
	c.Assert(found, gc.Equals, false)
	s.c.GetOrCompute(context.TODO(), "https://a.example.com/", compute)
	c.Assert(atomic.LoadInt32(&calls), gc.Equals, int32(3))

	c.Assert(s.c.Purge(), gc.IsNil)
	c.Assert(s.store.Len(), gc.Equals, 0)
}

func (s *CacheTestSuite) TestStoreErrorsAreNotFatal(c *gc.C) {
	s.c = cache.New(failingStore{}, cache.Options{Clock: s.clk, Logger: quietLogger()})

	var calls int32
	compute := countingCompute(&calls, link.Valid())
	c.Assert(s.c.GetOrCompute(context.TODO(), "https://example.com/", compute), gc.DeepEquals, link.Valid())
	c.Assert(s.c.GetOrCompute(context.TODO(), "https://example.com/", compute), gc.DeepEquals, link.Valid())
	c.Assert(atomic.LoadInt32(&calls), gc.Equals, int32(2))
}

func (s *CacheTestSuite) TestExpiredEntryReplacedDuringLookupSurvives(c *gc.C) {
	key := link.Key("https://example.com/")
	s.c.GetOrCompute(context.TODO(), key, countingCompute(new(int32), link.Valid()))
	s.clk.Advance(2 * time.Hour)

	// A fresh entry lands between the lookup of the expired one and its
	// removal.
	fresh := cache.Entry{
		Outcome:   link.Invalid(link.BadStatus(500), ""),
		CheckedAt: s.clk.Now(),
		ExpiresAt: s.clk.Now().Add(time.Hour),
	}
	racing := &putAfterGetStore{Store: s.store, key: key, entry: fresh}
	cc := cache.New(racing, cache.Options{TTL: time.Hour, Clock: s.clk, Logger: quietLogger()})

	_, found := cc.Peek(key)
	c.Assert(found, gc.Equals, false)

	got, found := cc.Peek(key)
	c.Assert(found, gc.Equals, true, gc.Commentf("expected the newer entry to survive expiry cleanup"))
	c.Assert(got, gc.DeepEquals, fresh.Outcome)
}

// putAfterGetStore writes entry right after the first Get of key returns.
type putAfterGetStore struct {
	*inmem.Store
	key   link.Key
	entry cache.Entry
	once  sync.Once
}

func (s *putAfterGetStore) Get(key link.Key) (cache.Entry, bool, error) {
	entry, found, err := s.Store.Get(key)
	if key == s.key {
		s.once.Do(func() { _ = s.Store.Put(key, s.entry) })
	}
	return entry, found, err
}

func countingCompute(calls *int32, outcome link.Outcome) func(context.Context) link.Outcome {
	return func(context.Context) link.Outcome {
		atomic.AddInt32(calls, 1)
		return outcome
	}
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

var errStoreDown = errors.New("store down")

type failingStore struct{}

func (failingStore) Get(link.Key) (cache.Entry, bool, error) { return cache.Entry{}, false, errStoreDown }
func (failingStore) Put(link.Key, cache.Entry) error         { return errStoreDown }
func (failingStore) Delete(link.Key) error                   { return errStoreDown }
func (failingStore) Purge() error                            { return errStoreDown }

func (failingStore) DeleteStale(link.Key, time.Time) error { return errStoreDown }
