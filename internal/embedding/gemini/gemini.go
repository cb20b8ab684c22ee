// Package gemini embeds text with Google's Gemini embedding models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// maxBatch is the per-request limit of batchEmbedContents.
const maxBatch = 100

// Config configures the Gemini embedder.
type Config struct {
	APIKeyEnv string
	Model     string
	BatchSize int
}

// Embedder implements domain.Embedder on top of a genai client.
type Embedder struct {
	client    *genai.Client
	query     *genai.EmbeddingModel
	document  *genai.EmbeddingModel
	model     string
	batchSize int
	dimension atomic.Int64
}

// New creates a Gemini embedder. It fails when the API key is not set so
// ingestion stops before doing any work.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GOOGLE_GENERATIVE_AI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatch {
		cfg.BatchSize = maxBatch
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	query := client.EmbeddingModel(cfg.Model)
	query.TaskType = genai.TaskTypeRetrievalQuery
	document := client.EmbeddingModel(cfg.Model)
	document.TaskType = genai.TaskTypeRetrievalDocument
	return &Embedder{
		client:    client,
		query:     query,
		document:  document,
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "gemini:" + e.model }

// Dimension returns the vector length once the first call has returned.
func (e *Embedder) Dimension() int { return int(e.dimension.Load()) }

// Embed embeds a single query text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	res, err := e.query.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return e.widen(res.Embedding.Values), nil
}

// EmbedMany embeds case documents in batches, preserving order.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		b := e.document.NewBatch()
		for _, t := range texts[start:end] {
			b.AddContent(genai.Text(t))
		}
		res, err := e.document.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("got %d embeddings for %d inputs", len(res.Embeddings), end-start)
		}
		for i, emb := range res.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("empty embedding at %d", start+i)
			}
			out = append(out, e.widen(emb.Values))
		}
	}
	return out, nil
}

// Close releases the underlying client.
func (e *Embedder) Close() error { return e.client.Close() }

func (e *Embedder) widen(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	e.dimension.CompareAndSwap(0, int64(len(out)))
	return out
}
