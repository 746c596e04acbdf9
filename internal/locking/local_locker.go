package locking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ SessionLocker = (*LocalLocker)(nil)

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// LocalLocker serializes turns inside one process. Entries are reference
// counted and removed once nobody holds or waits for them.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
	wait    time.Duration
}

// NewLocalLocker creates a LocalLocker. wait <= 0 means wait until ctx is done.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		entries: make(map[uuid.UUID]*lockEntry),
		wait:    wait,
	}
}

func (l *LocalLocker) Lock(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	entry := l.acquireEntry(sessionID)

	waitCtx, cancel := withWait(ctx, l.wait)
	defer cancel()

	select {
	case entry.sem <- struct{}{}:
	case <-waitCtx.Done():
		l.releaseEntry(sessionID, entry)
		return nil, busyError(sessionID, waitCtx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.releaseEntry(sessionID, entry)
		})
	}, nil
}

func (l *LocalLocker) acquireEntry(sessionID uuid.UUID) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[sessionID]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[sessionID] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) releaseEntry(sessionID uuid.UUID, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, sessionID)
	}
}

// size returns the number of tracked sessions.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
