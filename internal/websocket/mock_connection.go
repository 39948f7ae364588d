package websocket

import (
	"errors"
	"sync"
	"time"
)

// MockConnection is an in-memory Connection for tests. Reads block until
// Close.
type MockConnection struct {
	mu      sync.Mutex
	written [][]byte
	types   []int
	closed  bool
	closeCh chan struct{}

	RemoteAddress string
	// WriteErr, when set, fails every write
	WriteErr error
}

// NewMockConnection creates a new mock connection
func NewMockConnection() *MockConnection {
	return &MockConnection{RemoteAddress: "127.0.0.1:8080", closeCh: make(chan struct{})}
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("connection closed")
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.types = append(m.types, messageType)
	m.written = append(m.written, append([]byte(nil), data...))
	return nil
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	<-m.closeCh
	return 0, nil, errors.New("connection closed")
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closeCh)
	}
	return nil
}

func (m *MockConnection) SetReadDeadline(time.Time) error  { return nil }
func (m *MockConnection) SetWriteDeadline(time.Time) error { return nil }
func (m *MockConnection) SetReadLimit(int64)               {}
func (m *MockConnection) SetPongHandler(func(string) error) {}
func (m *MockConnection) RemoteAddr() string               { return m.RemoteAddress }

// Written returns the frames written so far, with their message types
func (m *MockConnection) Written() ([]int, [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.types...), append([][]byte(nil), m.written...)
}

// IsClosed reports whether Close was called
func (m *MockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
