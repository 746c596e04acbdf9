// Package locking provides per-session exclusive sections so that at most
// one turn of a session is in flight at a time.
package locking

import (
	"context"
	"fmt"
	"time"

	"storytrain/internal/models"

	"github.com/google/uuid"
)

// SessionLocker grants exclusive access to one session.
type SessionLocker interface {
	// Lock blocks until the session is free, the wait bound elapses or ctx is done.
	// The returned unlock func is safe to call more than once.
	// Failing to acquire returns models.ErrSessionBusy.
	Lock(ctx context.Context, sessionID uuid.UUID) (unlock func(), error)
}

func withWait(ctx context.Context, wait time.Duration) (context.Context, context.CancelFunc) {
	if wait <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, wait)
}

func busyError(sessionID uuid.UUID, cause error) error {
	return fmt.Errorf("%w: session %s: %w", models.ErrSessionBusy, sessionID, cause)
}
