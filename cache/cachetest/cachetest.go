// Package cachetest provides a reusable acceptance suite for cache.Store
// implementations.
package cachetest

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ejacobg/linkcheck/cache"
	"github.com/ejacobg/linkcheck/link"
	"github.com/google/go-cmp/cmp"
)

// Suite defines a re-usable set of store-related tests that can be executed
// against any type that implements cache.Store.
type Suite struct {
	S cache.Store

	// Optional helper functions.
	BeforeEach func(*testing.T)
	AfterEach  func(*testing.T)
}

// TestStore runs every test of the suite.
func (s *Suite) TestStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*testing.T, cache.Store)
	}{
		{"Put and get", TestPutAndGet},
		{"Missing key", TestMissingKey},
		{"Overwrite", TestOverwrite},
		{"Delete", TestDelete},
		{"Delete stale", TestDeleteStale},
		{"Purge", TestPurge},
		{"Concurrent access", TestConcurrentAccess},
	}

	if s.BeforeEach == nil {
		s.BeforeEach = func(t *testing.T) {}
	}

	if s.AfterEach == nil {
		s.AfterEach = func(t *testing.T) {}
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s.BeforeEach(t)
			test.fn(t, s.S)
			s.AfterEach(t)
		})
	}
}

func timestamp() time.Time {
	// Stores may not keep sub-microsecond precision.
	return time.Now().Truncate(time.Millisecond).UTC()
}

// TestPutAndGet verifies that stored entries can be read back, including
// every outcome field.
func TestPutAndGet(t *testing.T, s cache.Store) {
	now := timestamp()
	entries := map[link.Key]cache.Entry{
		"https://example.com/": {
			Outcome:   link.Valid(),
			CheckedAt: now,
		},
		"https://example.com/missing": {
			Outcome:   link.Invalid(link.BadStatus(404), "HEAD https://example.com/missing"),
			CheckedAt: now,
			ExpiresAt: now.Add(time.Hour),
		},
		"file:///docs/README.md": {
			Outcome:   link.Invalid(link.Reason{Kind: link.NotFound}, ""),
			CheckedAt: now,
		},
		"mailto:someone@example.com": {
			Outcome:   link.Ignore("excluded"),
			CheckedAt: now,
		},
	}

	for key, entry := range entries {
		if err := s.Put(key, entry); err != nil {
			t.Fatalf("failed to store %q: %v", key, err)
		}
	}

	for key, want := range entries {
		got, found, err := s.Get(key)
		if err != nil {
			t.Fatalf("failed to get %q: %v", key, err)
		}
		if !found {
			t.Fatalf("expected %q to be found", key)
		}
		if diff := cmp.Diff(want, normalize(got)); diff != "" {
			t.Errorf("entry mismatch for %q (-want +got):\n%s", key, diff)
		}
	}
}

// TestMissingKey verifies lookups of unknown keys.
func TestMissingKey(t *testing.T, s cache.Store) {
	_, found, err := s.Get("https://unknown.example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Errorf("expected unknown key to be missing")
	}
}

// TestOverwrite verifies that Put replaces existing entries.
func TestOverwrite(t *testing.T, s cache.Store) {
	key := link.Key("https://example.com/flaky")
	first := cache.Entry{Outcome: link.Invalid(link.Reason{Kind: link.Timeout}, ""), CheckedAt: timestamp()}
	second := cache.Entry{Outcome: link.Valid(), CheckedAt: timestamp().Add(time.Minute)}

	if err := s.Put(key, first); err != nil {
		t.Fatalf("failed to store entry: %v", err)
	}
	if err := s.Put(key, second); err != nil {
		t.Fatalf("failed to overwrite entry: %v", err)
	}

	got, found, err := s.Get(key)
	if err != nil || !found {
		t.Fatalf("expected entry to be found (err %v)", err)
	}
	if diff := cmp.Diff(second, normalize(got)); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

// TestDelete verifies entry removal.
func TestDelete(t *testing.T, s cache.Store) {
	key := link.Key("https://example.com/gone")
	if err := s.Put(key, cache.Entry{Outcome: link.Valid(), CheckedAt: timestamp()}); err != nil {
		t.Fatalf("failed to store entry: %v", err)
	}
	if err := s.Delete(key); err != nil {
		t.Fatalf("failed to delete entry: %v", err)
	}
	if _, found, _ := s.Get(key); found {
		t.Errorf("expected deleted entry to be missing")
	}

	// Deleting twice is fine.
	if err := s.Delete(key); err != nil {
		t.Errorf("unexpected error deleting a missing key: %v", err)
	}
}

// TestDeleteStale verifies that only entries checked at or before the given
// time are removed.
func TestDeleteStale(t *testing.T, s cache.Store) {
	key := link.Key("https://example.com/stale")
	old := timestamp()
	if err := s.Put(key, cache.Entry{Outcome: link.Valid(), CheckedAt: old}); err != nil {
		t.Fatalf("failed to store entry: %v", err)
	}
	if err := s.DeleteStale(key, old); err != nil {
		t.Fatalf("failed to delete stale entry: %v", err)
	}
	if _, found, _ := s.Get(key); found {
		t.Fatalf("expected stale entry to be removed")
	}

	fresh := cache.Entry{Outcome: link.Invalid(link.BadStatus(500), ""), CheckedAt: old.Add(time.Minute)}
	if err := s.Put(key, fresh); err != nil {
		t.Fatalf("failed to store entry: %v", err)
	}
	if err := s.DeleteStale(key, old); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, found, err := s.Get(key)
	if err != nil || !found {
		t.Fatalf("expected newer entry to survive (err %v)", err)
	}
	if diff := cmp.Diff(fresh, normalize(got)); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	// Missing keys are fine.
	if err := s.DeleteStale("https://unknown.example.com/", old); err != nil {
		t.Errorf("unexpected error for a missing key: %v", err)
	}
}

// TestPurge verifies that Purge removes everything.
func TestPurge(t *testing.T, s cache.Store) {
	for i := 0; i < 10; i++ {
		key := link.Key(fmt.Sprintf("https://example.com/%d", i))
		if err := s.Put(key, cache.Entry{Outcome: link.Valid(), CheckedAt: timestamp()}); err != nil {
			t.Fatalf("failed to store entry: %v", err)
		}
	}

	if err := s.Purge(); err != nil {
		t.Fatalf("failed to purge: %v", err)
	}

	for i := 0; i < 10; i++ {
		key := link.Key(fmt.Sprintf("https://example.com/%d", i))
		if _, found, _ := s.Get(key); found {
			t.Errorf("expected %q to be purged", key)
		}
	}
}

// TestConcurrentAccess hammers the store from multiple goroutines.
func TestConcurrentAccess(t *testing.T, s cache.Store) {
	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := link.Key(fmt.Sprintf("https://example.com/%d/%d", w, i))
				if err := s.Put(key, cache.Entry{Outcome: link.Valid(), CheckedAt: timestamp()}); err != nil {
					errCh <- err
					return
				}
				if _, found, err := s.Get(key); err != nil || !found {
					errCh <- fmt.Errorf("read-after-write failed for %q: %v", key, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}
}

// normalize converts timestamps to UTC so entries read from stores that
// return local times compare equal.
func normalize(e cache.Entry) cache.Entry {
	e.CheckedAt = e.CheckedAt.UTC()
	if !e.ExpiresAt.IsZero() {
		e.ExpiresAt = e.ExpiresAt.UTC()
	}
	return e
}
