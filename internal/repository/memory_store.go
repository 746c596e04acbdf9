package repository

import (
	"context"
	"maps"
	"sync"
	"time"

	"storytrain/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ StoryStore = (*MemoryStore)(nil)

type memoryState struct {
	blocks      map[int64]*models.StoryBlock
	sessions    map[uuid.UUID]*models.StorySession
	nextBlockID int64
}

// MemoryStore is an in-process StoryStore. Data is lost on restart.
// A transaction reads through to the shared state and buffers its writes;
// commit merges the buffer under the write lock. Writers are serialized, so the
// shared state cannot change under an open transaction.
type MemoryStore struct {
	txMu   sync.Mutex   // один писатель за раз
	mu     sync.RWMutex // защищает state
	state  *memoryState
	logger *zap.Logger
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			blocks:      make(map[int64]*models.StoryBlock),
			sessions:    make(map[uuid.UUID]*models.StorySession),
			nextBlockID: 1,
		},
		logger: logger.Named("MemoryStore"),
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(repo StoryRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	tx := newMemoryTx(&s.mu, s.state)
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		s.logger.Debug("Transaction discarded", zap.Error(err))
		return err
	}

	s.mu.Lock()
	tx.commitTo(s.state)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CreateBlock(ctx context.Context, text string, options map[string]string) (int64, error) {
	var id int64
	err := s.WithinTx(ctx, func(repo StoryRepository) error {
		var err error
		id, err = repo.CreateBlock(ctx, text, options)
		return err
	})
	return id, err
}

func (s *MemoryStore) GetBlock(ctx context.Context, id int64) (*models.StoryBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readBlock(s.state.blocks[id])
}

func (s *MemoryStore) CreateSession(ctx context.Context, currentBlockID int64, history []models.HistoryEntry) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.WithinTx(ctx, func(repo StoryRepository) error {
		var err error
		id, err = repo.CreateSession(ctx, currentBlockID, history)
		return err
	})
	return id, err
}

func (s *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.StorySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readSession(s.state.sessions[id])
}

func (s *MemoryStore) UpdateSession(ctx context.Context, id uuid.UUID, currentBlockID int64, history []models.HistoryEntry) error {
	return s.WithinTx(ctx, func(repo StoryRepository) error {
		return repo.UpdateSession(ctx, id, currentBlockID, history)
	})
}

// memoryTx is a StoryRepository that buffers writes over the shared state.
// Only the rows it touches are held, so a turn costs the same however many
// blocks the store already has.
type memoryTx struct {
	baseMu      *sync.RWMutex
	base        *memoryState
	blocks      map[int64]*models.StoryBlock
	sessions    map[uuid.UUID]*models.StorySession
	nextBlockID int64
}

func newMemoryTx(baseMu *sync.RWMutex, base *memoryState) *memoryTx {
	return &memoryTx{
		baseMu:      baseMu,
		base:        base,
		blocks:      make(map[int64]*models.StoryBlock),
		sessions:    make(map[uuid.UUID]*models.StorySession),
		nextBlockID: base.nextBlockID,
	}
}

func (t *memoryTx) commitTo(state *memoryState) {
	maps.Copy(state.blocks, t.blocks)
	maps.Copy(state.sessions, t.sessions)
	state.nextBlockID = t.nextBlockID
}

func (t *memoryTx) block(id int64) *models.StoryBlock {
	if block, ok := t.blocks[id]; ok {
		return block
	}
	t.baseMu.RLock()
	defer t.baseMu.RUnlock()
	return t.base.blocks[id]
}

func (t *memoryTx) session(id uuid.UUID) *models.StorySession {
	if session, ok := t.sessions[id]; ok {
		return session
	}
	t.baseMu.RLock()
	defer t.baseMu.RUnlock()
	return t.base.sessions[id]
}

func (t *memoryTx) CreateBlock(_ context.Context, text string, options map[string]string) (int64, error) {
	id := t.nextBlockID
	t.nextBlockID++
	t.blocks[id] = &models.StoryBlock{
		ID:        id,
		Text:      text,
		Options:   maps.Clone(options),
		CreatedAt: time.Now().UTC(),
	}
	return id, nil
}

func (t *memoryTx) GetBlock(_ context.Context, id int64) (*models.StoryBlock, error) {
	return readBlock(t.block(id))
}

func (t *memoryTx) CreateSession(_ context.Context, currentBlockID int64, history []models.HistoryEntry) (uuid.UUID, error) {
	if err := checkHistory(currentBlockID, history); err != nil {
		return uuid.Nil, err
	}
	if err := t.checkBlocks(history); err != nil {
		return uuid.Nil, err
	}

	now := time.Now().UTC()
	id := uuid.New()
	t.sessions[id] = &models.StorySession{
		ID:             id,
		CreatedAt:      now,
		UpdatedAt:      now,
		CurrentBlockID: currentBlockID,
		History:        append([]models.HistoryEntry(nil), history...),
	}
	return id, nil
}

func (t *memoryTx) GetSession(_ context.Context, id uuid.UUID) (*models.StorySession, error) {
	return readSession(t.session(id))
}

func (t *memoryTx) UpdateSession(_ context.Context, id uuid.UUID, currentBlockID int64, history []models.HistoryEntry) error {
	if err := checkHistory(currentBlockID, history); err != nil {
		return err
	}
	current := t.session(id)
	if current == nil {
		return models.ErrNotFound
	}
	if !isHistoryPrefix(current.History, history) {
		return models.ErrConcurrentTurn
	}
	if err := t.checkBlocks(history[len(current.History):]); err != nil {
		return err
	}

	// Запись заменяется целиком, старую могут читать снаружи
	t.sessions[id] = &models.StorySession{
		ID:             current.ID,
		CreatedAt:      current.CreatedAt,
		UpdatedAt:      time.Now().UTC(),
		CurrentBlockID: currentBlockID,
		History:        append([]models.HistoryEntry(nil), history...),
	}
	return nil
}

// checkBlocks mirrors the foreign keys of the SQL schema.
func (t *memoryTx) checkBlocks(entries []models.HistoryEntry) error {
	for _, entry := range entries {
		if t.block(entry.BlockID) == nil {
			return models.ErrBlockNotFound
		}
	}
	return nil
}

// readBlock returns a copy the caller may modify.
func readBlock(block *models.StoryBlock) (*models.StoryBlock, error) {
	if block == nil {
		return nil, models.ErrNotFound
	}
	out := *block
	out.Options = maps.Clone(block.Options)
	return &out, nil
}

func readSession(session *models.StorySession) (*models.StorySession, error) {
	if session == nil {
		return nil, models.ErrNotFound
	}
	out := *session
	out.History = append([]models.HistoryEntry(nil), session.History...)
	return &out, nil
}
