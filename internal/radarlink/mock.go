package radarlink

import (
	"io"
	"sync"
)

// MockPort implements RadarPorter in memory for tests and dev mode. Writes
// from the test side via Feed appear as reads on the link side.
type MockPort struct {
	reader *io.PipeReader
	writer *io.PipeWriter

	mu     sync.Mutex
	closed bool
}

// NewMockPort returns a connected mock port.
func NewMockPort() *MockPort {
	r, w := io.Pipe()
	return &MockPort{reader: r, writer: w}
}

// Feed injects raw bytes as if the sensor had sent them.
func (m *MockPort) Feed(data []byte) error {
	_, err := m.writer.Write(data)
	return err
}

// FinishFeeding signals end of input; Monitor returns after draining.
func (m *MockPort) FinishFeeding() error {
	return m.writer.Close()
}

func (m *MockPort) Read(p []byte) (int, error) {
	return m.reader.Read(p)
}

// Write discards command bytes; the mock sensor accepts everything.
func (m *MockPort) Write(p []byte) (int, error) {
	return len(p), nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.writer.Close()
	return m.reader.Close()
}
