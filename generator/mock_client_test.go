package generator

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// mockLLMClient is a testify mock for LLMClient.
type mockLLMClient struct {
	mock.Mock
}

func newMockLLMClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *mockLLMClient {
	m := &mockLLMClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockLLMClient) Complete(ctx context.Context, prompt Prompt) (string, error) {
	ret := m.Called(ctx, prompt)
	return ret.String(0), ret.Error(1)
}

func kind(k string) any {
	return mock.MatchedBy(func(p Prompt) bool { return p.Kind == k })
}

var _ LLMClient = (*mockLLMClient)(nil)
