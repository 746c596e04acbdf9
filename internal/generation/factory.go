package generation

import (
	"fmt"

	"storytrain/internal/config"

	"go.uber.org/zap"
)

// NewTextGenerator creates the backend selected by cfg.AIClientType.
func NewTextGenerator(cfg *config.Config, logger *zap.Logger) (TextGenerator, error) {
	switch cfg.AIClientType {
	case config.AIClientOpenAI:
		counter, err := NewTokenCounter(cfg.AITokenizerEncoding)
		if err != nil {
			// Без токенизатора просто не будет оценок usage
			logger.Warn("Tokenizer unavailable, usage estimates disabled", zap.Error(err))
		}
		return NewOpenAIClient(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout, counter, logger), nil
	case config.AIClientOllama:
		return NewOllamaClient(cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout, logger)
	default:
		return nil, fmt.Errorf("unknown AI client type: '%s'", cfg.AIClientType)
	}
}

// ParamsFromConfig returns the sampling parameters configured in cfg.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		MaxNewTokens: cfg.GenerationMaxNewTokens,
		NumSamples:   cfg.GenerationNumSamples,
		Temperature:  cfg.GenerationTemperature,
	}.withDefaults()
}
