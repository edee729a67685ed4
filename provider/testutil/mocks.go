package testutil

import (
	"context"

	"anvil/chat"
	"anvil/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// MockProvider implements the chat.Provider interface for testing
type MockProvider struct {
	// Configurable responses
	ChatFunc          func(ctx context.Context, messages []chat.Message, cb chat.StreamCallback) error
	ChatWithToolsFunc func(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error
	ListModelsFunc    func(ctx context.Context) ([]ollama.ModelInfo, error)
	PingFunc          func(ctx context.Context) error

	// State
	currentModel string
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{
		currentModel: modelName,
	}
	mock.ChatFunc = mock.defaultChat
	mock.ChatWithToolsFunc = mock.defaultChatWithTools
	mock.ListModelsFunc = mock.defaultListModels
	mock.PingFunc = mock.defaultPing
	return mock
}

// NewScriptedProvider creates a mock whose chat calls replay the given
// event sequences, one sequence per call, in order. Calls past the end of
// the script replay the last sequence.
func NewScriptedProvider(modelName string, script ...[]chat.StreamEvent) *MockProvider {
	mock := NewMockProvider(modelName)
	call := 0
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
		if len(script) == 0 {
			return nil
		}
		idx := call
		if idx >= len(script) {
			idx = len(script) - 1
		}
		call++
		for _, ev := range script[idx] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if cb != nil {
				if err := cb(ev); err != nil {
					return err
				}
			}
		}
		return nil
	}
	mock.ChatFunc = func(ctx context.Context, messages []chat.Message, cb chat.StreamCallback) error {
		return mock.ChatWithToolsFunc(ctx, messages, nil, cb)
	}
	return mock
}

func (m *MockProvider) defaultChat(ctx context.Context, messages []chat.Message, cb chat.StreamCallback) error {
	// Default: echo back a mock response
	if len(messages) > 0 {
		return cb(chat.StreamEvent{ContentDelta: "Mock response"})
	}
	return nil
}

func (m *MockProvider) defaultChatWithTools(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
	return cb(chat.StreamEvent{ContentDelta: "Mock response with tools"})
}

func (m *MockProvider) defaultListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return []ollama.ModelInfo{
		{Name: "mock-model-1", Size: 1000},
		{Name: "mock-model-2", Size: 2000},
	}, nil
}

func (m *MockProvider) defaultPing(ctx context.Context) error {
	return nil
}

func (m *MockProvider) Chat(ctx context.Context, messages []chat.Message, cb chat.StreamCallback) error {
	return m.ChatFunc(ctx, messages, cb)
}

func (m *MockProvider) ChatWithTools(ctx context.Context, messages []chat.Message, tools []mcptypes.Tool, cb chat.StreamCallback) error {
	return m.ChatWithToolsFunc(ctx, messages, tools, cb)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) GetModel() string {
	return m.currentModel
}

func (m *MockProvider) GetDisplayName() string {
	// no prefix stripping for the mock
	return m.currentModel
}

func (m *MockProvider) SetModel(model string) {
	m.currentModel = model
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}
