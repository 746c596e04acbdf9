package mocks

import (
	"context"

	"storytrain/internal/models"
	"storytrain/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockNarrativeEngine is a mock implementation of service.NarrativeEngine
type MockNarrativeEngine struct {
	mock.Mock
}

var _ service.NarrativeEngine = (*MockNarrativeEngine)(nil)

func (m *MockNarrativeEngine) StartSession(ctx context.Context) (*models.StorySession, *models.StoryBlock, error) {
	args := m.Called(ctx)
	var session *models.StorySession
	if v := args.Get(0); v != nil {
		session = v.(*models.StorySession)
	}
	var block *models.StoryBlock
	if v := args.Get(1); v != nil {
		block = v.(*models.StoryBlock)
	}
	return session, block, args.Error(2)
}

func (m *MockNarrativeEngine) ContinueSession(ctx context.Context, sessionID uuid.UUID, choice string) (*models.StoryBlock, error) {
	args := m.Called(ctx, sessionID, choice)
	if v := args.Get(0); v != nil {
		return v.(*models.StoryBlock), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockNarrativeEngine) GenerateBlock(ctx context.Context) (*models.StoryBlock, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*models.StoryBlock), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockNarrativeEngine) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.StorySession, error) {
	args := m.Called(ctx, sessionID)
	if v := args.Get(0); v != nil {
		return v.(*models.StorySession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockNarrativeEngine) GetBlock(ctx context.Context, blockID int64) (*models.StoryBlock, error) {
	args := m.Called(ctx, blockID)
	if v := args.Get(0); v != nil {
		return v.(*models.StoryBlock), args.Error(1)
	}
	return nil, args.Error(1)
}
