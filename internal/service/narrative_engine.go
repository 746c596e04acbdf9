package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storytrain/internal/locking"
	"storytrain/internal/messaging"
	"storytrain/internal/models"
	"storytrain/internal/prompt"
	"storytrain/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NarrativeEngine runs the story turns.
type NarrativeEngine interface {
	// StartSession generates an opening block and creates a session pointing at it.
	StartSession(ctx context.Context) (*models.StorySession, *models.StoryBlock, error)
	// ContinueSession generates the block that follows choice and advances the session.
	// Turns of the same session never overlap.
	ContinueSession(ctx context.Context, sessionID uuid.UUID, choice string) (*models.StoryBlock, error)
	// GenerateBlock generates and stores an opening block that belongs to no session.
	GenerateBlock(ctx context.Context) (*models.StoryBlock, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*models.StorySession, error)
	GetBlock(ctx context.Context, blockID int64) (*models.StoryBlock, error)
}

// BlockGenerator produces a block from a prompt. Failures wrap models.ErrGenerationFailed.
type BlockGenerator interface {
	Generate(ctx context.Context, prompt string) (*models.GeneratedBlock, error)
}

type narrativeEngineImpl struct {
	store             repository.StoryStore
	generator         BlockGenerator
	locker            locking.SessionLocker
	publisher         messaging.TurnEventPublisher
	generationTimeout time.Duration
	logger            *zap.Logger
}

// NewNarrativeEngine creates a NarrativeEngine. A nil publisher disables turn events;
// generationTimeout <= 0 leaves generation bounded only by ctx.
func NewNarrativeEngine(
	store repository.StoryStore,
	generator BlockGenerator,
	locker locking.SessionLocker,
	publisher messaging.TurnEventPublisher,
	generationTimeout time.Duration,
	logger *zap.Logger,
) NarrativeEngine {
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	return &narrativeEngineImpl{
		store:             store,
		generator:         generator,
		locker:            locker,
		publisher:         publisher,
		generationTimeout: generationTimeout,
		logger:            logger.Named("NarrativeEngine"),
	}
}

func (e *narrativeEngineImpl) StartSession(ctx context.Context) (session *models.StorySession, block *models.StoryBlock, err error) {
	start := time.Now()
	defer func() { e.observe(operationStart, start, err) }()

	generated, err := e.generate(ctx, prompt.Opening())
	if err != nil {
		return nil, nil, err
	}

	var blockID int64
	var sessionID uuid.UUID
	history := make([]models.HistoryEntry, 1)
	err = e.store.WithinTx(ctx, func(repo repository.StoryRepository) error {
		var err error
		if blockID, err = repo.CreateBlock(ctx, generated.Text, generated.Options); err != nil {
			return err
		}
		history[0] = models.HistoryEntry{BlockID: blockID, Choice: models.StartChoice}
		sessionID, err = repo.CreateSession(ctx, blockID, history)
		return err
	})
	if err != nil {
		e.logger.Error("Failed to persist new session", zap.Error(err))
		return nil, nil, fmt.Errorf("ошибка сохранения новой сессии: %w", err)
	}

	now := time.Now().UTC()
	block = &models.StoryBlock{ID: blockID, Text: generated.Text, Options: generated.Options, CreatedAt: now}
	session = &models.StorySession{
		ID:             sessionID,
		CreatedAt:      now,
		UpdatedAt:      now,
		CurrentBlockID: blockID,
		History:        history,
	}

	e.logger.Info("Session started", zap.String("sessionID", sessionID.String()), zap.Int64("blockID", blockID))
	e.publish(ctx, messaging.NewTurnEvent(messaging.TurnEventSessionStarted, sessionID, blockID, models.StartChoice, len(history)))
	return session, block, nil
}

func (e *narrativeEngineImpl) ContinueSession(ctx context.Context, sessionID uuid.UUID, choice string) (block *models.StoryBlock, err error) {
	start := time.Now()
	defer func() { e.observe(operationContinue, start, err) }()

	log := e.logger.With(zap.String("sessionID", sessionID.String()), zap.String("choice", choice))

	lockStart := time.Now()
	unlock, err := e.locker.Lock(ctx, sessionID)
	sessionLockWait.Observe(time.Since(lockStart).Seconds())
	if err != nil {
		log.Warn("Failed to acquire session lock", zap.Error(err))
		return nil, err
	}
	defer unlock()

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("ошибка загрузки сессии: %w", err)
	}

	current, err := e.store.GetBlock(ctx, session.CurrentBlockID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Error("Session points at a missing block",
				zap.Int64("blockID", session.CurrentBlockID),
				zap.Bool("integrity_alarm", true),
			)
			return nil, fmt.Errorf("%w: block %d of session %s", models.ErrBlockNotFound, session.CurrentBlockID, sessionID)
		}
		return nil, fmt.Errorf("ошибка загрузки текущего блока: %w", err)
	}

	if choice == models.StartChoice || !current.HasOption(choice) {
		log.Debug("Choice rejected", zap.Int64("blockID", current.ID))
		return nil, fmt.Errorf("%w: '%s'", models.ErrInvalidChoice, choice)
	}

	generated, err := e.generate(ctx, prompt.Continuation(current.Text, choice))
	if err != nil {
		return nil, err
	}

	var blockID int64
	var history []models.HistoryEntry
	err = e.store.WithinTx(ctx, func(repo repository.StoryRepository) error {
		var err error
		if blockID, err = repo.CreateBlock(ctx, generated.Text, generated.Options); err != nil {
			return err
		}
		history = session.AppendTurn(blockID, choice)
		return repo.UpdateSession(ctx, sessionID, blockID, history)
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConcurrentTurn):
			log.Warn("Session advanced by another turn, nothing committed")
			return nil, err
		case errors.Is(err, models.ErrNotFound):
			return nil, models.ErrSessionNotFound
		}
		log.Error("Failed to persist turn", zap.Error(err))
		return nil, fmt.Errorf("ошибка сохранения хода: %w", err)
	}
	unlock()

	block = &models.StoryBlock{ID: blockID, Text: generated.Text, Options: generated.Options, CreatedAt: time.Now().UTC()}
	log.Info("Session continued", zap.Int64("blockID", blockID), zap.Int("turns", len(history)))
	e.publish(ctx, messaging.NewTurnEvent(messaging.TurnEventSessionContinued, sessionID, blockID, choice, len(history)))
	return block, nil
}

func (e *narrativeEngineImpl) GenerateBlock(ctx context.Context) (block *models.StoryBlock, err error) {
	start := time.Now()
	defer func() { e.observe(operationBlock, start, err) }()

	generated, err := e.generate(ctx, prompt.Opening())
	if err != nil {
		return nil, err
	}
	id, err := e.store.CreateBlock(ctx, generated.Text, generated.Options)
	if err != nil {
		e.logger.Error("Failed to persist standalone block", zap.Error(err))
		return nil, fmt.Errorf("ошибка сохранения блока: %w", err)
	}
	e.logger.Info("Standalone block generated", zap.Int64("blockID", id))
	return &models.StoryBlock{ID: id, Text: generated.Text, Options: generated.Options, CreatedAt: time.Now().UTC()}, nil
}

func (e *narrativeEngineImpl) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.StorySession, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("ошибка загрузки сессии: %w", err)
	}
	return session, nil
}

func (e *narrativeEngineImpl) GetBlock(ctx context.Context, blockID int64) (*models.StoryBlock, error) {
	block, err := e.store.GetBlock(ctx, blockID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrBlockNotFound
		}
		return nil, fmt.Errorf("ошибка загрузки блока: %w", err)
	}
	return block, nil
}

// generate bounds the generator call by the generation timeout and checks the result.
func (e *narrativeEngineImpl) generate(ctx context.Context, p string) (*models.GeneratedBlock, error) {
	if e.generationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.generationTimeout)
		defer cancel()
	}

	generated, err := e.generator.Generate(ctx, p)
	if err != nil {
		if !errors.Is(err, models.ErrGenerationFailed) {
			err = fmt.Errorf("%w: %w", models.ErrGenerationFailed, err)
		}
		return nil, err
	}
	if err := generated.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrGenerationFailed, err)
	}
	return generated, nil
}

// publish sends a turn event after commit. Failures are only logged.
func (e *narrativeEngineImpl) publish(ctx context.Context, event messaging.TurnEventPayload) {
	// Ход уже сохранен, отмена запроса не должна терять событие
	ctx = context.WithoutCancel(ctx)
	if err := e.publisher.PublishTurnEvent(ctx, event); err != nil {
		e.logger.Warn("Failed to publish turn event",
			zap.String("sessionID", event.SessionID),
			zap.String("eventType", string(event.EventType)),
			zap.Error(err),
		)
	}
}

func (e *narrativeEngineImpl) observe(operation string, start time.Time, err error) {
	turnsTotal.WithLabelValues(operation, outcomeOf(err)).Inc()
	turnDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
