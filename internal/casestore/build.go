package casestore

import (
	"context"
	"fmt"

	"rentcase/internal/domain"
)

// BuildOptions tunes ingestion.
type BuildOptions struct {
	// BatchSize caps how many texts go to one EmbedMany call (default 100).
	BatchSize int
	// Progress, if set, is called after each embedded batch.
	Progress func(done, total int)
}

// Build embeds every entry and returns a new snapshot. Any failure aborts the
// whole build; no partial snapshot is ever returned.
func Build(ctx context.Context, embedder domain.Embedder, entries []RawEntry, opts BuildOptions) (*domain.Snapshot, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	seen := make(map[string]struct{}, len(entries))
	texts := make([]string, len(entries))
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate entry id %q", domain.ErrInvalidInput, e.ID)
		}
		seen[e.ID] = struct{}{}
		texts[i] = Content(e.Metadata)
	}

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(texts))
		batch, err := embedder.EmbedMany(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingFailure, embedder.Name(), err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: got %d embeddings for %d entries", domain.ErrEmbeddingFailure, len(batch), end-start)
		}
		vectors = append(vectors, batch...)
		if opts.Progress != nil {
			opts.Progress(len(vectors), len(texts))
		}
	}

	snap := &domain.Snapshot{Records: make([]domain.CaseRecord, len(entries))}
	for i, e := range entries {
		snap.Records[i] = domain.CaseRecord{
			ID:        e.ID,
			Content:   texts[i],
			Embedding: vectors[i],
			Metadata:  e.Metadata,
		}
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingFailure, err)
	}
	return snap, nil
}
