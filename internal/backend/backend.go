// Package backend provides the text-generation and embedding clients the
// scheduler consumes. Both are treated as black boxes: the OpenAI
// implementation is the production path and a deterministic mock backs
// tests and offline runs.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrNotEmbeddable marks a recoverable embedding failure: the turn exists
// but its vector could not be computed yet. Callers may retry later.
var ErrNotEmbeddable = errors.New("backend: not yet embeddable")

// SamplingParams are the numeric knobs sent with a generation request.
type SamplingParams struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// GenRequest is one generation call.
type GenRequest struct {
	System   string // persona framing
	Prompt   string // dialogue transcript plus instruction
	Sampling SamplingParams
}

// GenResult is the outcome of a generation call.
type GenResult struct {
	Text    string
	Latency time.Duration
}

// Generator produces the next utterance for a prompt. Implementations must
// honor ctx cancellation; the scheduler cancels in-flight calls on end().
type Generator interface {
	Generate(ctx context.Context, req GenRequest) (*GenResult, error)
}

// Embedder converts text to a fixed-dimension vector. The dimension must be
// constant for the life of a session.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
