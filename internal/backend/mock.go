package backend

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockGenerator is a scripted Generator for tests and offline runs. It
// replays Responses in order, wrapping around when exhausted, and can be
// told to fail a number of times first.
type MockGenerator struct {
	mu        sync.Mutex
	Responses []string
	FailTimes int // fail this many calls with a transient error
	Calls     int
}

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, req GenRequest) (*GenResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.FailTimes > 0 {
		m.FailTimes--
		return nil, fmt.Errorf("mock: 503 server_error")
	}
	text := "…"
	if len(m.Responses) > 0 {
		text = m.Responses[(m.Calls-1)%len(m.Responses)]
	}
	return &GenResult{Text: text, Latency: time.Millisecond}, nil
}

// MockEmbedder is a deterministic Embedder for tests. If Fn is set it is
// used directly; otherwise a stable hash-based vector of Dim components is
// derived from the text.
type MockEmbedder struct {
	Dim int
	Fn  func(text string) []float64

	mu    sync.Mutex
	Calls int
}

// Embed implements Embedder.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.Fn != nil {
		return m.Fn(text), nil
	}
	dim := m.Dim
	if dim == 0 {
		dim = 8
	}
	vec := make([]float64, dim)
	var h uint64 = 1469598103934665603
	for i := 0; i < len(text); i++ {
		h ^= uint64(text[i])
		h *= 1099511628211
		vec[h%uint64(dim)]++
	}
	return vec, nil
}
