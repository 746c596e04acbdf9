package generation

import "context"

// TextGenerator is a text-completion backend.
//
// Complete returns the raw output for prompt, which starts with the prompt
// itself followed by the model's continuation. Implementations must not retry.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, params Params) (string, UsageInfo, error)
}
