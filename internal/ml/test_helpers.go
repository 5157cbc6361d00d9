package ml

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu           sync.Mutex
	loads        map[string]int
	loadFailures map[string]int
	latencies    []float64
}

func (m *MockMetrics) ModelLoadsInc(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loads == nil {
		m.loads = make(map[string]int)
	}
	m.loads[model]++
}

func (m *MockMetrics) ModelLoadFailuresInc(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadFailures == nil {
		m.loadFailures = make(map[string]int)
	}
	m.loadFailures[model]++
}

func (m *MockMetrics) InferenceLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, v)
}

func (m *MockMetrics) Loads(model string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads[model]
}

func (m *MockMetrics) LoadFailures(model string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadFailures[model]
}

func (m *MockMetrics) Inferences() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.latencies)
}

// MemoryStore is an in-memory ArtifactStore that counts Open calls.
type MemoryStore struct {
	files map[string][]byte
	opens atomic.Int64
	// Gate, when set, is received from before each Open returns.
	Gate chan struct{}
}

func NewMemoryStore(files map[string]string) *MemoryStore {
	s := &MemoryStore{files: make(map[string][]byte, len(files))}
	for k, v := range files {
		s.files[k] = []byte(v)
	}
	return s
}

func (s *MemoryStore) Open(path string) (io.ReadCloser, error) {
	s.opens.Add(1)
	if s.Gate != nil {
		<-s.Gate
	}
	b, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("artifact %s not found", path)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Opens reports how many times Open has been called.
func (s *MemoryStore) Opens() int {
	return int(s.opens.Load())
}
