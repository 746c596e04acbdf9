package repository

import (
	"context"
	"testing"

	"storytrain/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) StoryStore {
		return NewMemoryStore(zap.NewNop())
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(zap.NewNop())

	options := models.DefaultOptions()
	id, err := store.CreateBlock(ctx, "text", options)
	require.NoError(t, err)
	options["A"] = "mutated by caller"

	block, err := store.GetBlock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Continue the story", block.Options["A"])

	block.Options["B"] = "mutated by reader"
	again, _ := store.GetBlock(ctx, id)
	assert.Equal(t, "Choose a different path", again.Options["B"])

	sid, err := store.CreateSession(ctx, id, []models.HistoryEntry{{BlockID: id, Choice: models.StartChoice}})
	require.NoError(t, err)
	session, _ := store.GetSession(ctx, sid)
	session.History[0].Choice = "X"
	fresh, _ := store.GetSession(ctx, sid)
	assert.Equal(t, models.StartChoice, fresh.History[0].Choice)
}

func TestMemoryStore_UnknownBlockInHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(zap.NewNop())

	_, err := store.CreateSession(ctx, 42, []models.HistoryEntry{{BlockID: 42, Choice: models.StartChoice}})
	assert.ErrorIs(t, err, models.ErrBlockNotFound)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewMemoryStore(zap.NewNop())

	_, err := store.CreateBlock(ctx, "text", models.DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_TxHoldsOnlyTouchedRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(zap.NewNop())

	var lastID int64
	for i := 0; i < 100; i++ {
		id, err := store.CreateBlock(ctx, "old block", models.DefaultOptions())
		require.NoError(t, err)
		lastID = id
	}
	sid, err := store.CreateSession(ctx, lastID, []models.HistoryEntry{{BlockID: lastID, Choice: models.StartChoice}})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(repo StoryRepository) error {
		tx, ok := repo.(*memoryTx)
		require.True(t, ok)

		blockID, err := repo.CreateBlock(ctx, "new block", models.DefaultOptions())
		require.NoError(t, err)
		session, err := repo.GetSession(ctx, sid)
		require.NoError(t, err)
		require.NoError(t, repo.UpdateSession(ctx, sid, blockID, session.AppendTurn(blockID, "A")))

		assert.Len(t, tx.blocks, 1)
		assert.Len(t, tx.sessions, 1)
		return nil
	})
	require.NoError(t, err)

	session, err := store.GetSession(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, session.History, 2)
	assert.Equal(t, lastID+1, session.CurrentBlockID)
}

func TestMemoryStore_DiscardedTxLeavesNoRows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(zap.NewNop())

	var discarded int64
	err := store.WithinTx(ctx, func(repo StoryRepository) error {
		id, err := repo.CreateBlock(ctx, "never committed", models.DefaultOptions())
		require.NoError(t, err)
		discarded = id
		return models.ErrConcurrentTurn
	})
	require.ErrorIs(t, err, models.ErrConcurrentTurn)

	_, err = store.GetBlock(ctx, discarded)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
