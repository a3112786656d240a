package ai

import (
	"context"
	"sync"
)

// MockClient is a deterministic Client for tests and for running the agent
// without any model backend. Answers are served FIFO from a scripted queue;
// once the queue is empty it answers with zero confidence, which callers
// treat as "no opinion".
type MockClient struct {
	mu      sync.Mutex
	answers []*Answer
	errs    []error
	calls   []Request
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

// Queue appends a scripted answer.
func (m *MockClient) Queue(a *Answer) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, a)
	m.errs = append(m.errs, nil)
	return m
}

// QueueError appends a scripted failure.
func (m *MockClient) QueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, nil)
	m.errs = append(m.errs, err)
	return m
}

// Calls returns a copy of every request seen so far.
func (m *MockClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Ask was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockClient) Ask(ctx context.Context, req Request) (*Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ProviderError{Provider: Mock, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if len(m.answers) > 0 {
		a, err := m.answers[0], m.errs[0]
		m.answers = m.answers[1:]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
		if a.Fields == nil {
			a.Fields = make(map[string]string)
		}
		return a, nil
	}

	return &Answer{Fields: make(map[string]string)}, nil
}
