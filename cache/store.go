package cache

import (
	"time"

	"github.com/ejacobg/linkcheck/link"
)

// Entry is a cached outcome together with its bookkeeping timestamps.
type Entry struct {
	Outcome link.Outcome

	// When the check producing Outcome completed.
	CheckedAt time.Time

	// Zero if the entry never expires.
	ExpiresAt time.Time
}

// Expired returns true if the entry is no longer usable at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is implemented by objects that can persist cache entries. Stores
// must be safe for concurrent use; they are not required to evict expired
// entries themselves.
type Store interface {
	// Get looks up the entry for key. The boolean is false if no entry
	// exists.
	Get(key link.Key) (Entry, bool, error)

	// Put creates or replaces the entry for key.
	Put(key link.Key, entry Entry) error

	// Delete removes the entry for key. Deleting a missing key is not an
	// error.
	Delete(key link.Key) error

	// DeleteStale removes the entry for key only if it was checked at or
	// before checkedAt, so a newer entry written concurrently survives.
	DeleteStale(key link.Key, checkedAt time.Time) error

	// Purge removes all entries.
	Purge() error
}
