package backend

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fieldline/trajet/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI implements Generator and Embedder against the OpenAI API or any
// OpenAI-compatible endpoint (set backend.base_url).
type OpenAI struct {
	client     openai.Client
	model      string
	embedModel string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// NewOpenAI builds a client from config. The API key is read from the
// environment variable named by cfg.APIKeyEnv.
func NewOpenAI(cfg config.BackendConfig) (*OpenAI, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend: %s is not set", cfg.APIKeyEnv)
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
		timeout:    cfg.Timeout.Std(),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff.Std(),
	}, nil
}

// Generate implements Generator with bounded retry on transient failures.
func (o *OpenAI) Generate(ctx context.Context, req GenRequest) (*GenResult, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
	}
	if req.Sampling.Temperature > 0 {
		params.Temperature = openai.Float(req.Sampling.Temperature)
	}
	if req.Sampling.TopP > 0 {
		params.TopP = openai.Float(req.Sampling.TopP)
	}
	if req.Sampling.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.Sampling.MaxTokens))
	}

	var text string
	start := time.Now()
	err := Retry(ctx, o.maxRetries, o.backoff, func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		resp, err := o.client.Chat.Completions.New(callCtx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("backend: empty completion response")
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("backend: generate: %w", err)
	}
	return &GenResult{Text: text, Latency: time.Since(start)}, nil
}

// Embed implements Embedder. Failures are wrapped in ErrNotEmbeddable so
// the caller can treat them as recoverable rather than fatal.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float64, error) {
	var vec []float64
	err := Retry(ctx, o.maxRetries, o.backoff, func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		resp, err := o.client.Embeddings.New(callCtx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(o.embedModel),
			Input: openai.EmbeddingNewParamsInputUnion{
				OfString: openai.String(text),
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("backend: empty embedding response")
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEmbeddable, err)
	}
	return vec, nil
}
