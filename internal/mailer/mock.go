package mailer

import (
	"context"
	"sync"
)

// MockDispatcher records envelopes for tests and can be told to fail.
type MockDispatcher struct {
	mu   sync.Mutex
	sent []Envelope
	err  error
}

// NewMockDispatcher returns an empty mock.
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

// Send records the envelope, or returns the configured error.
func (m *MockDispatcher) Send(_ context.Context, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, env)
	return nil
}

// Fail makes subsequent Send calls return err (nil to restore success).
func (m *MockDispatcher) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Sent returns a copy of all recorded envelopes.
func (m *MockDispatcher) Sent() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Envelope, len(m.sent))
	copy(cp, m.sent)
	return cp
}
