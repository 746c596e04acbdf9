package generation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const backendOpenAI = "openai"

// openAIClient talks to an OpenAI-compatible /completions endpoint.
// Echo is always requested so the output starts with the prompt.
type openAIClient struct {
	client  *openaigo.Client
	model   string
	counter *TokenCounter
	logger  *zap.Logger
}

// NewOpenAIClient creates a TextGenerator for an OpenAI-compatible API.
// An empty baseURL keeps the library default.
func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration, counter *TokenCounter, logger *zap.Logger) TextGenerator {
	cfg := openaigo.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	logger = logger.Named("OpenAIClient")
	logger.Info("OpenAI client created",
		zap.String("baseURL", cfg.BaseURL),
		zap.String("model", model),
		zap.Duration("timeout", timeout),
	)

	return &openAIClient{
		client:  openaigo.NewClientWithConfig(cfg),
		model:   model,
		counter: counter,
		logger:  logger,
	}
}

func (c *openAIClient) Complete(ctx context.Context, prompt string, params Params) (string, UsageInfo, error) {
	params = params.withDefaults()
	start := time.Now()

	resp, err := c.client.CreateCompletion(ctx, openaigo.CompletionRequest{
		Model:       c.model,
		Prompt:      prompt,
		MaxTokens:   params.MaxNewTokens,
		Temperature: float32(params.Temperature),
		N:           params.NumSamples,
		Echo:        true,
	})
	duration := time.Since(start)

	if err != nil {
		observeRequest(backendOpenAI, statusError, duration.Seconds())
		c.logger.Warn("Completion request failed", zap.Duration("duration", duration), zap.Error(err))
		return "", UsageInfo{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		observeRequest(backendOpenAI, statusEmptyResponse, duration.Seconds())
		return "", UsageInfo{}, fmt.Errorf("openai completion: response has no choices")
	}

	raw := resp.Choices[0].Text
	// Некоторые совместимые серверы игнорируют echo
	if !strings.HasPrefix(raw, prompt) {
		raw = prompt + raw
	}

	usage := UsageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = c.counter.Estimate(prompt, strings.TrimPrefix(raw, prompt))
	}

	observeRequest(backendOpenAI, statusSuccess, duration.Seconds())
	observeUsage(backendOpenAI, usage)
	c.logger.Debug("Completion received",
		zap.Duration("duration", duration),
		zap.String("finishReason", resp.Choices[0].FinishReason),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
		zap.Bool("estimated", usage.Estimated),
	)
	return raw, usage, nil
}
