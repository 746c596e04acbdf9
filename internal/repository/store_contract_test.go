package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"storytrain/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRollback = errors.New("rollback requested")

// runStoreContract checks the behaviour every StoryStore must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) StoryStore) {
	ctx := context.Background()

	t.Run("block round trip", func(t *testing.T) {
		store := newStore(t)
		id, err := store.CreateBlock(ctx, "A fox found a map.", models.DefaultOptions())
		require.NoError(t, err)

		block, err := store.GetBlock(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, block.ID)
		assert.Equal(t, "A fox found a map.", block.Text)
		assert.Equal(t, models.DefaultOptions(), block.Options)
		assert.False(t, block.CreatedAt.IsZero())
	})

	t.Run("block ids are distinct", func(t *testing.T) {
		store := newStore(t)
		first, err := store.CreateBlock(ctx, "one", models.DefaultOptions())
		require.NoError(t, err)
		second, err := store.CreateBlock(ctx, "two", models.DefaultOptions())
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("missing rows", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetBlock(ctx, 987654)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = store.GetSession(ctx, uuid.New())
		assert.ErrorIs(t, err, models.ErrNotFound)
		err = store.UpdateSession(ctx, uuid.New(), 1, []models.HistoryEntry{{BlockID: 1, Choice: models.StartChoice}})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("session round trip and append", func(t *testing.T) {
		store := newStore(t)
		b1, err := store.CreateBlock(ctx, "opening", models.DefaultOptions())
		require.NoError(t, err)
		history := []models.HistoryEntry{{BlockID: b1, Choice: models.StartChoice}}

		sid, err := store.CreateSession(ctx, b1, history)
		require.NoError(t, err)

		session, err := store.GetSession(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, sid, session.ID)
		assert.Equal(t, b1, session.CurrentBlockID)
		assert.Equal(t, history, session.History)
		assert.True(t, session.Consistent())

		b2, err := store.CreateBlock(ctx, "next", models.DefaultOptions())
		require.NoError(t, err)
		require.NoError(t, store.UpdateSession(ctx, sid, b2, session.AppendTurn(b2, "A")))

		updated, err := store.GetSession(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, b2, updated.CurrentBlockID)
		assert.Equal(t, []models.HistoryEntry{{BlockID: b1, Choice: models.StartChoice}, {BlockID: b2, Choice: "A"}}, updated.History)
	})

	t.Run("stale history is rejected", func(t *testing.T) {
		store := newStore(t)
		b1, _ := store.CreateBlock(ctx, "opening", models.DefaultOptions())
		sid, err := store.CreateSession(ctx, b1, []models.HistoryEntry{{BlockID: b1, Choice: models.StartChoice}})
		require.NoError(t, err)
		stale, err := store.GetSession(ctx, sid)
		require.NoError(t, err)

		b2, _ := store.CreateBlock(ctx, "winner", models.DefaultOptions())
		b3, _ := store.CreateBlock(ctx, "loser", models.DefaultOptions())
		require.NoError(t, store.UpdateSession(ctx, sid, b2, stale.AppendTurn(b2, "A")))

		err = store.UpdateSession(ctx, sid, b3, stale.AppendTurn(b3, "B"))
		assert.ErrorIs(t, err, models.ErrConcurrentTurn)

		session, err := store.GetSession(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, b2, session.CurrentBlockID)
		assert.Len(t, session.History, 2)
	})

	t.Run("inconsistent history is rejected", func(t *testing.T) {
		store := newStore(t)
		b1, _ := store.CreateBlock(ctx, "opening", models.DefaultOptions())
		_, err := store.CreateSession(ctx, b1, nil)
		assert.ErrorIs(t, err, models.ErrInvalidHistory)
		_, err = store.CreateSession(ctx, b1, []models.HistoryEntry{{BlockID: b1 + 100, Choice: models.StartChoice}})
		assert.ErrorIs(t, err, models.ErrInvalidHistory)
	})

	t.Run("failed transaction leaves nothing behind", func(t *testing.T) {
		store := newStore(t)
		b1, _ := store.CreateBlock(ctx, "opening", models.DefaultOptions())
		sid, err := store.CreateSession(ctx, b1, []models.HistoryEntry{{BlockID: b1, Choice: models.StartChoice}})
		require.NoError(t, err)
		before, _ := store.GetSession(ctx, sid)

		var orphan int64
		err = store.WithinTx(ctx, func(repo StoryRepository) error {
			var err error
			orphan, err = repo.CreateBlock(ctx, "never committed", models.DefaultOptions())
			if err != nil {
				return err
			}
			if err := repo.UpdateSession(ctx, sid, orphan, before.AppendTurn(orphan, "A")); err != nil {
				return err
			}
			return errRollback
		})
		require.ErrorIs(t, err, errRollback)

		_, err = store.GetBlock(ctx, orphan)
		assert.ErrorIs(t, err, models.ErrNotFound)
		after, err := store.GetSession(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, before.CurrentBlockID, after.CurrentBlockID)
		assert.Equal(t, before.History, after.History)
	})

	t.Run("committed transaction is visible", func(t *testing.T) {
		store := newStore(t)
		var sid uuid.UUID
		err := store.WithinTx(ctx, func(repo StoryRepository) error {
			b1, err := repo.CreateBlock(ctx, "opening", models.DefaultOptions())
			if err != nil {
				return err
			}
			sid, err = repo.CreateSession(ctx, b1, []models.HistoryEntry{{BlockID: b1, Choice: models.StartChoice}})
			return err
		})
		require.NoError(t, err)

		session, err := store.GetSession(ctx, sid)
		require.NoError(t, err)
		assert.Len(t, session.History, 1)
	})

	t.Run("concurrent appends from the same snapshot", func(t *testing.T) {
		store := newStore(t)
		b1, _ := store.CreateBlock(ctx, "opening", models.DefaultOptions())
		sid, err := store.CreateSession(ctx, b1, []models.HistoryEntry{{BlockID: b1, Choice: models.StartChoice}})
		require.NoError(t, err)
		snapshot, _ := store.GetSession(ctx, sid)

		const writers = 8
		var wg sync.WaitGroup
		results := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- store.WithinTx(ctx, func(repo StoryRepository) error {
					bid, err := repo.CreateBlock(ctx, "branch", models.DefaultOptions())
					if err != nil {
						return err
					}
					return repo.UpdateSession(ctx, sid, bid, snapshot.AppendTurn(bid, "A"))
				})
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, models.ErrConcurrentTurn)
		}
		assert.Equal(t, 1, succeeded)

		session, err := store.GetSession(ctx, sid)
		require.NoError(t, err)
		assert.Len(t, session.History, 2)
		assert.True(t, session.Consistent())
	})
}
