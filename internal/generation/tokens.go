package generation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultTokenizerEncoding is used when no encoding is configured.
const DefaultTokenizerEncoding = "cl100k_base"

// TokenCounter estimates token counts when a backend does not report usage.
// A nil *TokenCounter counts zero tokens.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter loads the named tiktoken encoding.
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	if encoding == "" {
		encoding = DefaultTokenizerEncoding
	}
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer encoding '%s': %w", encoding, err)
	}
	return &TokenCounter{encoding: tke}, nil
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) int {
	if c == nil || c.encoding == nil || text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// Estimate builds a UsageInfo from locally counted tokens.
func (c *TokenCounter) Estimate(prompt, completion string) UsageInfo {
	p, cmp := c.Count(prompt), c.Count(completion)
	return UsageInfo{
		PromptTokens:     p,
		CompletionTokens: cmp,
		TotalTokens:      p + cmp,
		Estimated:        true,
	}
}
