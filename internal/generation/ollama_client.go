package generation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

const backendOllama = "ollama"

// ollamaClient uses the native Ollama generate API in raw mode, so no chat
// template is applied to the story prompt.
type ollamaClient struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

// NewOllamaClient creates a TextGenerator for an Ollama server.
func NewOllamaClient(baseURL, model string, timeout time.Duration, logger *zap.Logger) (TextGenerator, error) {
	// api.NewClient ждет URL без /v1
	base := strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Ollama base URL '%s': %w", base, err)
	}

	logger = logger.Named("OllamaClient")
	logger.Info("Ollama client created",
		zap.String("baseURL", base),
		zap.String("model", model),
		zap.Duration("timeout", timeout),
	)

	return &ollamaClient{
		client: api.NewClient(parsed, &http.Client{Timeout: timeout}),
		model:  model,
		logger: logger,
	}, nil
}

func (c *ollamaClient) Complete(ctx context.Context, prompt string, params Params) (string, UsageInfo, error) {
	params = params.withDefaults()
	stream := false
	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Raw:    true,
		Stream: &stream,
		Options: map[string]interface{}{
			"num_predict": params.MaxNewTokens,
			"temperature": params.Temperature,
		},
	}

	start := time.Now()
	var final api.GenerateResponse
	var text strings.Builder
	err := c.client.Generate(ctx, req, func(r api.GenerateResponse) error {
		text.WriteString(r.Response)
		if r.Done {
			final = r
		}
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		observeRequest(backendOllama, statusError, duration.Seconds())
		c.logger.Warn("Generate request failed", zap.Duration("duration", duration), zap.Error(err))
		return "", UsageInfo{}, fmt.Errorf("ollama generate: %w", err)
	}
	if strings.TrimSpace(text.String()) == "" {
		observeRequest(backendOllama, statusEmptyResponse, duration.Seconds())
		return "", UsageInfo{}, fmt.Errorf("ollama generate: empty response")
	}

	usage := UsageInfo{
		PromptTokens:     final.PromptEvalCount,
		CompletionTokens: final.EvalCount,
		TotalTokens:      final.PromptEvalCount + final.EvalCount,
	}

	observeRequest(backendOllama, statusSuccess, duration.Seconds())
	observeUsage(backendOllama, usage)
	c.logger.Debug("Generate response received",
		zap.Duration("duration", duration),
		zap.String("doneReason", final.DoneReason),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
	)

	// Raw-режим не повторяет промпт, добавляем его сами
	return prompt + text.String(), usage, nil
}
