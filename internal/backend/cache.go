package backend

import (
	"context"
	"fmt"
	"sync"
)

// TurnEmbedder is the embedding adapter the scheduler uses: a per-turn
// cache over an Embedder. The backend may be non-deterministic across
// calls, but one turn id maps to exactly one vector and is never
// recomputed. The first successful vector also pins the session's
// embedding dimension.
type TurnEmbedder struct {
	inner Embedder

	mu     sync.Mutex
	byTurn map[int][]float64
	dim    int
}

// NewTurnEmbedder wraps an Embedder with a per-turn cache.
func NewTurnEmbedder(inner Embedder) *TurnEmbedder {
	return &TurnEmbedder{
		inner:  inner,
		byTurn: make(map[int][]float64),
	}
}

// EmbedTurn returns the cached vector for turn idx, computing it on first
// call. A dimension mismatch against earlier turns is an error: the series
// would be meaningless for the metrics engine.
func (e *TurnEmbedder) EmbedTurn(ctx context.Context, idx int, text string) ([]float64, error) {
	e.mu.Lock()
	if vec, ok := e.byTurn[idx]; ok {
		e.mu.Unlock()
		return vec, nil
	}
	e.mu.Unlock()

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrNotEmbeddable)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.byTurn[idx]; ok {
		// Lost a race; keep the first vector so the turn stays stable.
		return cached, nil
	}
	if e.dim == 0 {
		e.dim = len(vec)
	} else if len(vec) != e.dim {
		return nil, fmt.Errorf("backend: embedding dimension changed from %d to %d", e.dim, len(vec))
	}
	e.byTurn[idx] = vec
	return vec, nil
}

// Dim returns the pinned embedding dimension, 0 before the first embed.
func (e *TurnEmbedder) Dim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}
