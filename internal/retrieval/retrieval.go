// Package retrieval turns a free-text question into ranked, thresholded case
// matches.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"rentcase/internal/domain"
	"rentcase/internal/similarity"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.3
)

// Options controls how many matches are returned and how similar they must be.
type Options struct {
	TopK      int
	Threshold float64
}

// DefaultOptions returns TopK=5, Threshold=0.3.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, Threshold: DefaultThreshold}
}

// Result is the outcome of a search. Degraded is set when retrieval could not
// run (missing or corrupt store, embedding failure); Cases is then empty.
type Result struct {
	Cases    []domain.ScoredCase
	Degraded error
}

// SnapshotSource provides the current case store snapshot.
type SnapshotSource interface {
	Get(ctx context.Context) (*domain.Snapshot, error)
}

// Service embeds queries and ranks them against the cached snapshot.
type Service struct {
	source   SnapshotSource
	embedder domain.Embedder

	mu      sync.Mutex
	indexed *domain.Snapshot
	index   *similarity.Index
}

// NewService creates a retrieval service.
func NewService(source SnapshotSource, embedder domain.Embedder) *Service {
	return &Service{source: source, embedder: embedder}
}

// Search embeds query, ranks every case, drops scores below the threshold and
// then keeps at most TopK. Store and embedding failures are reported through
// Result.Degraded; only dimension mismatches and cancellation are errors. A
// store that cannot be read for any other reason counts as not found.
func (s *Service) Search(ctx context.Context, query string, opts Options) (Result, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if strings.TrimSpace(query) == "" {
		return Result{}, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	snap, err := s.source.Get(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		if !domain.Recoverable(err) {
			err = fmt.Errorf("%w: %w", domain.ErrStoreNotFound, err)
		}
		return Result{Degraded: err}, nil
	}
	if snap.Len() == 0 {
		return Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Result{}, err
		}
		return Result{Degraded: fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingFailure, s.embedder.Name(), err)}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	ranked, err := s.indexFor(snap).Rank(vec)
	if err != nil {
		return Result{}, err
	}
	return Result{Cases: Select(ranked, opts)}, nil
}

// Select applies the threshold to ranked cases and then truncates to TopK.
// Filtering happens first so low-scoring cases never take a TopK slot. A
// non-positive TopK means DefaultTopK.
func Select(ranked []domain.ScoredCase, opts Options) []domain.ScoredCase {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	out := make([]domain.ScoredCase, 0, min(opts.TopK, len(ranked)))
	for _, c := range ranked {
		if c.Score < opts.Threshold {
			continue
		}
		out = append(out, c)
		if len(out) == opts.TopK {
			break
		}
	}
	return out
}

// indexFor returns the index for snap, rebuilding it after a reload.
func (s *Service) indexFor(snap *domain.Snapshot) *similarity.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexed != snap {
		s.index = similarity.NewIndex(snap.Records)
		s.indexed = snap
	}
	return s.index
}
