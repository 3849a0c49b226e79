package store

import (
	"context"
)

// Repositories combines every typed repository plus the lock/cache tier
// behind one handle, so the application wires a single object instead of
// passing nine interfaces to every constructor.
type Repositories struct {
	Memories     MemoryRepository
	Patterns     PatternRepository
	Profiles     ProfileRepository
	Entities     EntityRepository
	Sessions     SessionRepository
	Turns        TurnRepository
	IndexRecords IndexRecordRepository
	Locks        LockRepository
	Cache        CacheRepository
}

// Closer is implemented by backends that hold live connections.
type Closer interface {
	Close() error
}

// CloseAll closes each non-nil Closer it is given, in order, and returns the
// first error; nil entries are skipped. A Closer passed twice is closed
// twice.
func CloseAll(ctx context.Context, closers ...Closer) error {
	var first error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
