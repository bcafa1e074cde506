package speech

import (
	"context"
	"sync"
	"time"
)

// Mock implements Speaker for testing.
type Mock struct {
	// SayFunc is called when Say is invoked. If nil, Say returns nil.
	SayFunc func(ctx context.Context, text string) error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Say invocation.
type MockCall struct {
	Text string
	Time time.Time
}

// NewMock creates a mock that accepts every announcement.
func NewMock() *Mock {
	return &Mock{}
}

// WithError creates a mock whose Say always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SayFunc: func(context.Context, string) error { return err },
	}
}

// Say records the call and runs SayFunc.
func (m *Mock) Say(ctx context.Context, text string) error {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, Time: time.Now()})
	m.mu.Unlock()

	if m.SayFunc != nil {
		return m.SayFunc(ctx, text)
	}
	return nil
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of Say calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ Speaker = (*Mock)(nil)
