package repository

import (
	"context"

	"storytrain/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StoryRepository persists blocks and sessions.
// Lookups of missing rows return models.ErrNotFound.
type StoryRepository interface {
	// CreateBlock stores a new immutable block and returns its id.
	CreateBlock(ctx context.Context, text string, options map[string]string) (int64, error)
	GetBlock(ctx context.Context, id int64) (*models.StoryBlock, error)
	// CreateSession stores a new session with its initial history.
	CreateSession(ctx context.Context, currentBlockID int64, history []models.HistoryEntry) (uuid.UUID, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.StorySession, error)
	// UpdateSession replaces the session's pointer and history. The stored history
	// must be a prefix of the new one, otherwise models.ErrConcurrentTurn is returned.
	UpdateSession(ctx context.Context, id uuid.UUID, currentBlockID int64, history []models.HistoryEntry) error
}

// StoryStore is a StoryRepository that can group calls into one atomic unit.
type StoryStore interface {
	StoryRepository
	// WithinTx runs fn against a transactional repository. Nothing fn wrote is
	// visible to others unless fn returns nil and the commit succeeds.
	WithinTx(ctx context.Context, fn func(repo StoryRepository) error) error
}

// checkHistory validates a history before it is written.
func checkHistory(currentBlockID int64, history []models.HistoryEntry) error {
	if len(history) == 0 || history[len(history)-1].BlockID != currentBlockID {
		return models.ErrInvalidHistory
	}
	return nil
}

// isHistoryPrefix reports whether stored is a prefix of next.
func isHistoryPrefix(stored, next []models.HistoryEntry) bool {
	if len(stored) > len(next) {
		return false
	}
	for i := range stored {
		if stored[i] != next[i] {
			return false
		}
	}
	return true
}
