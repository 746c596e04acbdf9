package mocks

import (
	"context"

	"storytrain/internal/messaging"

	"github.com/stretchr/testify/mock"
)

// MockTurnEventPublisher is a mock implementation of messaging.TurnEventPublisher
type MockTurnEventPublisher struct {
	mock.Mock
}

func (m *MockTurnEventPublisher) PublishTurnEvent(ctx context.Context, payload messaging.TurnEventPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

var _ messaging.TurnEventPublisher = (*MockTurnEventPublisher)(nil)
