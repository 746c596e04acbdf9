package generation_test

import (
	"context"
	"errors"
	"testing"

	"storytrain/internal/generation"
	"storytrain/internal/generation/mocks"
	"storytrain/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPrompt = "Once upon a time\nContinue the story following choice A: "

func TestAdapter_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("strips echoed prompt and trims", func(t *testing.T) {
		gen := mocks.NewMockTextGenerator(t)
		gen.On("Complete", mock.Anything, testPrompt, generation.DefaultParams()).
			Return(testPrompt+"  the owl flew home.\n", generation.UsageInfo{}, nil).Once()

		adapter := generation.NewAdapter(gen, generation.Params{}, zap.NewNop())
		block, err := adapter.Generate(ctx, testPrompt)

		require.NoError(t, err)
		assert.Equal(t, "the owl flew home.", block.Text)
		assert.Equal(t, models.DefaultOptions(), block.Options)
	})

	t.Run("passes configured params", func(t *testing.T) {
		params := generation.Params{MaxNewTokens: 42, NumSamples: 1, Temperature: 0.5}
		gen := mocks.NewMockTextGenerator(t)
		gen.On("Complete", mock.Anything, testPrompt, params).
			Return(testPrompt+"more", generation.UsageInfo{}, nil).Once()

		adapter := generation.NewAdapter(gen, params, zap.NewNop())
		_, err := adapter.Generate(ctx, testPrompt)

		require.NoError(t, err)
		assert.Equal(t, params, adapter.Params())
	})

	t.Run("whitespace-only continuation fails", func(t *testing.T) {
		gen := mocks.NewMockTextGenerator(t)
		gen.On("Complete", mock.Anything, testPrompt, mock.Anything).
			Return(testPrompt+" \n\t ", generation.UsageInfo{}, nil).Once()

		adapter := generation.NewAdapter(gen, generation.DefaultParams(), zap.NewNop())
		block, err := adapter.Generate(ctx, testPrompt)

		assert.Nil(t, block)
		assert.ErrorIs(t, err, models.ErrGenerationFailed)
	})

	t.Run("backend error is wrapped", func(t *testing.T) {
		cause := errors.New("connection refused")
		gen := mocks.NewMockTextGenerator(t)
		gen.On("Complete", mock.Anything, testPrompt, mock.Anything).
			Return("", generation.UsageInfo{}, cause).Once()

		adapter := generation.NewAdapter(gen, generation.DefaultParams(), zap.NewNop())
		_, err := adapter.Generate(ctx, testPrompt)

		assert.ErrorIs(t, err, models.ErrGenerationFailed)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("deadline is a generation failure", func(t *testing.T) {
		gen := mocks.NewMockTextGenerator(t)
		gen.On("Complete", mock.Anything, testPrompt, mock.Anything).
			Return("", generation.UsageInfo{}, context.DeadlineExceeded).Once()

		adapter := generation.NewAdapter(gen, generation.DefaultParams(), zap.NewNop())
		_, err := adapter.Generate(ctx, testPrompt)

		assert.ErrorIs(t, err, models.ErrGenerationFailed)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("fresh options map per block", func(t *testing.T) {
		gen := mocks.NewMockTextGenerator(t)
		gen.On("Complete", mock.Anything, testPrompt, mock.Anything).
			Return(testPrompt+"text", generation.UsageInfo{}, nil).Twice()

		adapter := generation.NewAdapter(gen, generation.DefaultParams(), zap.NewNop())
		first, err := adapter.Generate(ctx, testPrompt)
		require.NoError(t, err)
		second, err := adapter.Generate(ctx, testPrompt)
		require.NoError(t, err)

		first.Options["A"] = "changed"
		assert.Equal(t, "Continue the story", second.Options["A"])
	})
}

func TestExtractContinuation(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		raw    string
		want   string
	}{
		{"echoed", "P:", "P: hello ", "hello"},
		{"no echo", "P:", "  hello", "hello"},
		{"only prompt", "P:", "P:", ""},
		{"prompt appears later", "P:", "x P: y", "x P: y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generation.ExtractContinuation(tt.prompt, tt.raw))
		})
	}
}

func TestDefaultParams(t *testing.T) {
	p := generation.DefaultParams()
	assert.Equal(t, 150, p.MaxNewTokens)
	assert.Equal(t, 1, p.NumSamples)
	assert.InDelta(t, 0.9, p.Temperature, 1e-9)
}
