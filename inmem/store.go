// Package inmem provides an in-memory cache.Store implementation.
package inmem

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ejacobg/linkcheck/cache"
	"github.com/ejacobg/linkcheck/link"
)

// Compile-time check for ensuring Store implements cache.Store.
var _ cache.Store = (*Store)(nil)

const numShards = 32

type shard struct {
	mu      sync.RWMutex
	entries map[link.Key]cache.Entry
}

// Store is an in-memory cache.Store that can be concurrently accessed by
// multiple checks. Keys are spread across independently locked shards so
// unrelated checks do not contend on a single lock.
type Store struct {
	shards [numShards]*shard
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	s := new(Store)
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[link.Key]cache.Entry)}
	}
	return s
}

func (s *Store) shardFor(key link.Key) *shard {
	return s.shards[xxhash.Sum64String(string(key))%numShards]
}

// Get implements cache.Store.
func (s *Store) Get(key link.Key) (cache.Entry, bool, error) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	entry, found := sh.entries[key]
	sh.mu.RUnlock()
	return entry, found, nil
}

// Put implements cache.Store.
func (s *Store) Put(key link.Key, entry cache.Entry) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.entries[key] = entry
	sh.mu.Unlock()
	return nil
}

// Delete implements cache.Store.
func (s *Store) Delete(key link.Key) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
	return nil
}

// DeleteStale implements cache.Store.
func (s *Store) DeleteStale(key link.Key, checkedAt time.Time) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	if entry, found := sh.entries[key]; found && !entry.CheckedAt.After(checkedAt) {
		delete(sh.entries, key)
	}
	sh.mu.Unlock()
	return nil
}

// Purge implements cache.Store.
func (s *Store) Purge() error {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[link.Key]cache.Entry)
		sh.mu.Unlock()
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}
