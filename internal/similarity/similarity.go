// Package similarity ranks case records against a query vector by cosine
// similarity using a linear scan. There is no approximate index: every query
// costs O(N*D), which is fine for a corpus of a few thousand cases.
package similarity

import (
	"fmt"
	"math"
	"sort"

	"rentcase/internal/domain"
)

// Cosine returns dot(a,b)/(|a||b|). It is 0 when either vector has zero
// magnitude and fails with domain.ErrDimensionMismatch when lengths differ.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(a), len(b))
	}
	return cosine(a, b, norm(a), norm(b)), nil
}

// Rank scores every record against query and returns them ordered by
// descending score. Equal scores keep their input order.
func Rank(query []float64, records []domain.CaseRecord) ([]domain.ScoredCase, error) {
	return NewIndex(records).Rank(query)
}

// Index is an immutable view over a snapshot's records with precomputed norms.
// It is safe for concurrent use.
type Index struct {
	records []domain.CaseRecord
	norms   []float64
}

// NewIndex precomputes the magnitude of every record embedding.
func NewIndex(records []domain.CaseRecord) *Index {
	norms := make([]float64, len(records))
	for i := range records {
		norms[i] = norm(records[i].Embedding)
	}
	return &Index{records: records, norms: norms}
}

// Len returns the number of indexed records.
func (ix *Index) Len() int { return len(ix.records) }

// Rank scores all records against query. A record whose dimension differs
// from the query rejects the whole query; scores are never computed over a
// truncated or padded vector.
func (ix *Index) Rank(query []float64) ([]domain.ScoredCase, error) {
	qn := norm(query)
	scored := make([]domain.ScoredCase, len(ix.records))
	for i := range ix.records {
		emb := ix.records[i].Embedding
		if len(emb) != len(query) {
			return nil, fmt.Errorf("%w: case %q has %d dimensions, query has %d",
				domain.ErrDimensionMismatch, ix.records[i].ID, len(emb), len(query))
		}
		scored[i] = domain.ScoredCase{Record: ix.records[i], Score: cosine(emb, query, ix.norms[i], qn)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

func cosine(a, b []float64, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}
