package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storytrain/internal/models"

	"go.uber.org/zap"
)

// Adapter turns raw completions into story blocks.
type Adapter struct {
	generator TextGenerator
	params    Params
	logger    *zap.Logger
}

// NewAdapter creates an Adapter. Zero fields in params take the defaults.
func NewAdapter(generator TextGenerator, params Params, logger *zap.Logger) *Adapter {
	return &Adapter{
		generator: generator,
		params:    params.withDefaults(),
		logger:    logger.Named("GenerationAdapter"),
	}
}

// Params returns the effective sampling parameters.
func (a *Adapter) Params() Params {
	return a.params
}

// Generate requests one completion for prompt and converts it into a block
// carrying the default option pair.
// Every failure, including an empty continuation, wraps models.ErrGenerationFailed.
func (a *Adapter) Generate(ctx context.Context, prompt string) (*models.GeneratedBlock, error) {
	log := a.logger.With(zap.Int("promptLength", len(prompt)))
	start := time.Now()

	raw, usage, err := a.generator.Complete(ctx, prompt, a.params)
	if err != nil {
		log.Warn("Text generation failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", models.ErrGenerationFailed, err)
	}

	text := ExtractContinuation(prompt, raw)
	if text == "" {
		log.Warn("Text generation returned empty continuation",
			zap.Duration("duration", time.Since(start)),
			zap.Int("rawLength", len(raw)),
		)
		return nil, fmt.Errorf("%w: empty continuation", models.ErrGenerationFailed)
	}

	log.Debug("Text generated",
		zap.Duration("duration", time.Since(start)),
		zap.Int("textLength", len(text)),
		zap.Int("completionTokens", usage.CompletionTokens),
	)

	return &models.GeneratedBlock{
		Text:    text,
		Options: models.DefaultOptions(),
	}, nil
}

// ExtractContinuation drops the echoed prompt from raw and trims surrounding whitespace.
func ExtractContinuation(prompt, raw string) string {
	return strings.TrimSpace(strings.TrimPrefix(raw, prompt))
}
