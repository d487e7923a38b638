package batch

import (
	"sync"
	"time"
)

// periodLocks is an in-process advisory lock per computation period. It
// keeps two batches for the same period from interleaving; the storage
// unique constraint remains the backstop across processes.
type periodLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newPeriodLocks() *periodLocks {
	return &periodLocks{
		held: make(map[string]struct{}),
	}
}

// tryAcquire takes the lock for a period, reporting false when a batch for
// that period is already running.
func (l *periodLocks) tryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.held[key]; exists {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

// release frees the lock for a period.
func (l *periodLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, key)
}

func periodKey(start, end time.Time) string {
	return start.Format("2006-01-02") + "/" + end.Format("2006-01-02")
}
