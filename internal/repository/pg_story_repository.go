package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storytrain/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pgUniqueViolation = "23505"

const createBlockQuery = `
INSERT INTO story_blocks (text, options, created_at)
VALUES ($1, $2, $3)
RETURNING id`

const getBlockQuery = `
SELECT id, text, options, created_at
FROM story_blocks
WHERE id = $1`

const createSessionQuery = `
INSERT INTO story_sessions (id, current_block_id, created_at, updated_at)
VALUES ($1, $2, $3, $3)`

const getSessionQuery = `
SELECT id, created_at, updated_at, current_block_id
FROM story_sessions
WHERE id = $1`

const lockSessionQuery = `
SELECT id
FROM story_sessions
WHERE id = $1
FOR UPDATE`

const updateSessionQuery = `
UPDATE story_sessions
SET current_block_id = $2, updated_at = $3
WHERE id = $1`

const getHistoryQuery = `
SELECT block_id, choice
FROM session_history
WHERE session_id = $1
ORDER BY position`

const insertHistoryQuery = `
INSERT INTO session_history (session_id, position, block_id, choice, created_at)
VALUES ($1, $2, $3, $4, $5)`

// Compile-time checks.
var (
	_ StoryStore      = (*pgStoryStore)(nil)
	_ StoryRepository = (*pgStoryRepository)(nil)
)

// pgStoryRepository runs every statement on db, which is usually a transaction.
type pgStoryRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgStoryRepository returns a repository bound to db. Multi-statement
// operations are only atomic when db is a pgx.Tx.
func NewPgStoryRepository(db DBTX, logger *zap.Logger) StoryRepository {
	return &pgStoryRepository{db: db, logger: logger.Named("PgStoryRepo")}
}

func (r *pgStoryRepository) CreateBlock(ctx context.Context, text string, options map[string]string) (int64, error) {
	encoded, err := json.Marshal(options)
	if err != nil {
		return 0, fmt.Errorf("failed to encode block options: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, createBlockQuery, text, encoded, time.Now().UTC()).Scan(&id); err != nil {
		r.logger.Error("Failed to create story block", zap.Int("textLength", len(text)), zap.Error(err))
		return 0, fmt.Errorf("ошибка создания блока: %w", err)
	}
	r.logger.Debug("Story block created", zap.Int64("blockID", id))
	return id, nil
}

func (r *pgStoryRepository) GetBlock(ctx context.Context, id int64) (*models.StoryBlock, error) {
	var block models.StoryBlock
	if err := pgxscan.Get(ctx, r.db, &block, getBlockQuery, id); err != nil {
		if pgxscan.NotFound(err) {
			r.logger.Debug("Story block not found", zap.Int64("blockID", id))
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get story block", zap.Int64("blockID", id), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения блока %d: %w", id, err)
	}
	return &block, nil
}

func (r *pgStoryRepository) CreateSession(ctx context.Context, currentBlockID int64, history []models.HistoryEntry) (uuid.UUID, error) {
	if err := checkHistory(currentBlockID, history); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	now := time.Now().UTC()
	if _, err := r.db.Exec(ctx, createSessionQuery, id, currentBlockID, now); err != nil {
		r.logger.Error("Failed to create session", zap.Int64("blockID", currentBlockID), zap.Error(err))
		return uuid.Nil, fmt.Errorf("ошибка создания сессии: %w", err)
	}
	if err := r.insertHistory(ctx, id, 0, history, now); err != nil {
		return uuid.Nil, err
	}

	r.logger.Debug("Session created", zap.String("sessionID", id.String()), zap.Int64("blockID", currentBlockID))
	return id, nil
}

func (r *pgStoryRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.StorySession, error) {
	var session models.StorySession
	if err := pgxscan.Get(ctx, r.db, &session, getSessionQuery, id); err != nil {
		if pgxscan.NotFound(err) {
			r.logger.Debug("Session not found", zap.String("sessionID", id.String()))
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get session", zap.String("sessionID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения сессии %s: %w", id, err)
	}

	history, err := r.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	session.History = history
	return &session, nil
}

func (r *pgStoryRepository) UpdateSession(ctx context.Context, id uuid.UUID, currentBlockID int64, history []models.HistoryEntry) error {
	if err := checkHistory(currentBlockID, history); err != nil {
		return err
	}
	logFields := []zap.Field{zap.String("sessionID", id.String()), zap.Int64("blockID", currentBlockID)}

	// Строка сессии блокируется до конца транзакции
	var locked uuid.UUID
	if err := r.db.QueryRow(ctx, lockSessionQuery, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		r.logger.Error("Failed to lock session", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка блокировки сессии %s: %w", id, err)
	}

	stored, err := r.loadHistory(ctx, id)
	if err != nil {
		return err
	}
	if !isHistoryPrefix(stored, history) {
		r.logger.Warn("Stored history is not a prefix of the update",
			append(logFields, zap.Int("storedTurns", len(stored)), zap.Int("newTurns", len(history)))...)
		return models.ErrConcurrentTurn
	}

	now := time.Now().UTC()
	if err := r.insertHistory(ctx, id, len(stored), history[len(stored):], now); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, updateSessionQuery, id, currentBlockID, now); err != nil {
		r.logger.Error("Failed to update session", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка обновления сессии %s: %w", id, err)
	}

	r.logger.Debug("Session updated", append(logFields, zap.Int("turns", len(history)))...)
	return nil
}

func (r *pgStoryRepository) loadHistory(ctx context.Context, id uuid.UUID) ([]models.HistoryEntry, error) {
	var history []models.HistoryEntry
	if err := pgxscan.Select(ctx, r.db, &history, getHistoryQuery, id); err != nil {
		r.logger.Error("Failed to load session history", zap.String("sessionID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения истории сессии %s: %w", id, err)
	}
	return history, nil
}

func (r *pgStoryRepository) insertHistory(ctx context.Context, id uuid.UUID, offset int, entries []models.HistoryEntry, at time.Time) error {
	for i, entry := range entries {
		_, err := r.db.Exec(ctx, insertHistoryQuery, id, offset+i, entry.BlockID, entry.Choice, at)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return models.ErrConcurrentTurn
			}
			r.logger.Error("Failed to insert history entry",
				zap.String("sessionID", id.String()), zap.Int("position", offset+i), zap.Error(err))
			return fmt.Errorf("ошибка записи истории сессии %s: %w", id, err)
		}
	}
	return nil
}

// pgStoryStore is the PostgreSQL StoryStore. Multi-statement operations run
// in their own transaction unless called through WithinTx.
type pgStoryStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	repo   StoryRepository
}

// NewPgStoryStore creates a StoryStore backed by pool.
func NewPgStoryStore(pool *pgxpool.Pool, logger *zap.Logger) StoryStore {
	return &pgStoryStore{
		pool:   pool,
		logger: logger,
		repo:   NewPgStoryRepository(pool, logger),
	}
}

func (s *pgStoryStore) WithinTx(ctx context.Context, fn func(repo StoryRepository) error) error {
	return WithTx(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(NewPgStoryRepository(tx, s.logger))
	})
}

func (s *pgStoryStore) CreateBlock(ctx context.Context, text string, options map[string]string) (int64, error) {
	return s.repo.CreateBlock(ctx, text, options)
}

func (s *pgStoryStore) GetBlock(ctx context.Context, id int64) (*models.StoryBlock, error) {
	return s.repo.GetBlock(ctx, id)
}

func (s *pgStoryStore) CreateSession(ctx context.Context, currentBlockID int64, history []models.HistoryEntry) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.WithinTx(ctx, func(repo StoryRepository) error {
		var err error
		id, err = repo.CreateSession(ctx, currentBlockID, history)
		return err
	})
	return id, err
}

// GetSession reads the session row and its history from one snapshot.
func (s *pgStoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.StorySession, error) {
	var session *models.StorySession
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := WithTx(ctx, s.pool, opts, func(tx pgx.Tx) error {
		var err error
		session, err = NewPgStoryRepository(tx, s.logger).GetSession(ctx, id)
		return err
	})
	return session, err
}

func (s *pgStoryStore) UpdateSession(ctx context.Context, id uuid.UUID, currentBlockID int64, history []models.HistoryEntry) error {
	return s.WithinTx(ctx, func(repo StoryRepository) error {
		return repo.UpdateSession(ctx, id, currentBlockID, history)
	})
}
