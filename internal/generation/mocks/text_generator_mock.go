package mocks

import (
	"context"

	"storytrain/internal/generation"

	"github.com/stretchr/testify/mock"
)

// MockTextGenerator is a mock type for the generation.TextGenerator type
type MockTextGenerator struct {
	mock.Mock
}

// Complete provides a mock function with given fields: ctx, prompt, params
func (_m *MockTextGenerator) Complete(ctx context.Context, prompt string, params generation.Params) (string, generation.UsageInfo, error) {
	ret := _m.Called(ctx, prompt, params)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string, generation.Params) string); ok {
		r0 = rf(ctx, prompt, params)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(string)
	}

	var r1 generation.UsageInfo
	if rf, ok := ret.Get(1).(func(context.Context, string, generation.Params) generation.UsageInfo); ok {
		r1 = rf(ctx, prompt, params)
	} else if ret.Get(1) != nil {
		r1 = ret.Get(1).(generation.UsageInfo)
	}

	var r2 error
	if rf, ok := ret.Get(2).(func(context.Context, string, generation.Params) error); ok {
		r2 = rf(ctx, prompt, params)
	} else {
		r2 = ret.Error(2)
	}

	return r0, r1, r2
}

// NewMockTextGenerator creates a new instance of MockTextGenerator. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockTextGenerator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTextGenerator {
	m := &MockTextGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ generation.TextGenerator = (*MockTextGenerator)(nil)
