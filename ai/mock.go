package ai

import (
	"context"
	"sync"

	"github.com/Miles0sage/agentgate/core"
)

// MockAdapter is a scriptable Adapter for tests, grounded on the teacher's
// ai/providers/mock package: canned responses played back in order,
// optional forced errors, and call tracking for assertions. Unlike the
// teacher's mock, it is never auto-registered via init() — tests construct
// it directly and inject it through a dispatcher.AdapterResolver, since "mock" is
// not a member of the closed core.Provider set.
type MockAdapter struct {
	mu sync.Mutex

	Responses     []GenerateResult
	responseIndex int
	Err           error
	FailTimes     int // Err is returned for this many calls, then Responses play back
	ToolCapable   bool

	CallCount    int
	LastModel    string
	LastSystem   string
	LastMessages []core.Message
}

// NewMockAdapter builds a mock that returns a single canned text response.
func NewMockAdapter(text string) *MockAdapter {
	return &MockAdapter{Responses: []GenerateResult{{Text: text, InputTokens: 10, OutputTokens: 10}}}
}

func (m *MockAdapter) SupportsTools() bool { return m.ToolCapable }

func (m *MockAdapter) Generate(ctx context.Context, model, systemPrompt string, messages []core.Message, opts GenerateOptions) (GenerateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastModel = model
	m.LastSystem = systemPrompt
	m.LastMessages = messages

	if m.Err != nil {
		if m.FailTimes > 0 && m.CallCount > m.FailTimes {
			// fall through to the canned responses below
		} else {
			return GenerateResult{}, m.Err
		}
	}
	if len(m.Responses) == 0 {
		return GenerateResult{}, nil
	}
	idx := m.responseIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.responseIndex++
	}
	return m.Responses[idx], nil
}
