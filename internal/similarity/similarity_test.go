package similarity

import (
	"errors"
	"math"
	"testing"

	"rentcase/internal/domain"
)

func record(id string, emb ...float64) domain.CaseRecord {
	return domain.CaseRecord{ID: id, Embedding: emb, Metadata: domain.CaseMetadata{Title: id}}
}

func TestCosineIdentity(t *testing.T) {
	vectors := [][]float64{
		{1, 0, 0},
		{0.3, -2.5, 7},
		{-1, -1, -1},
		{1e-6, 3e6, 42},
	}
	for _, v := range vectors {
		got, err := Cosine(v, v)
		if err != nil {
			t.Fatalf("Cosine(%v, %v): %v", v, v, err)
		}
		if math.Abs(got-1) > 1e-9 {
			t.Errorf("Cosine(%v, %v) = %v, want 1", v, v, got)
		}
	}
}

func TestCosineZeroVector(t *testing.T) {
	zero := []float64{0, 0, 0}
	for _, other := range [][]float64{{0, 0, 0}, {1, 2, 3}, {-4, 0, 0.5}} {
		got, err := Cosine(zero, other)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 0 {
			t.Errorf("Cosine(zero, %v) = %v, want 0", other, got)
		}
		got, _ = Cosine(other, zero)
		if got != 0 {
			t.Errorf("Cosine(%v, zero) = %v, want 0", other, got)
		}
	}
}

func TestCosineOppositeAndOrthogonal(t *testing.T) {
	got, _ := Cosine([]float64{1, 2}, []float64{-1, -2})
	if math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite vectors: got %v, want -1", got)
	}
	got, _ = Cosine([]float64{1, 0}, []float64{0, 5})
	if got != 0 {
		t.Errorf("orthogonal vectors: got %v, want 0", got)
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	_, err := Cosine([]float64{1, 2, 3}, []float64{1, 2})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestRankSortedDescending(t *testing.T) {
	records := []domain.CaseRecord{
		record("a", 0, 1),
		record("b", 1, 0),
		record("c", 1, 1),
		record("d", -1, 0),
		record("e", 0.9, 0.1),
	}
	got, err := Rank([]float64{1, 0}, records)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("expected %d results, got %d", len(records), len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("results not sorted at %d: %v > %v", i, got[i].Score, got[i-1].Score)
		}
	}
	if got[0].Record.ID != "b" {
		t.Errorf("expected b first, got %s", got[0].Record.ID)
	}
	if got[len(got)-1].Record.ID != "d" {
		t.Errorf("expected d last, got %s", got[len(got)-1].Record.ID)
	}
}

func TestRankTiesKeepInsertionOrder(t *testing.T) {
	records := []domain.CaseRecord{
		record("first", 2, 0),
		record("other", 0, 1),
		record("second", 1, 0),
		record("third", 5, 0),
	}
	got, err := Rank([]float64{1, 0}, records)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	want := []string{"first", "second", "third", "other"}
	for i, id := range want {
		if got[i].Record.ID != id {
			t.Fatalf("position %d: got %s, want %s", i, got[i].Record.ID, id)
		}
	}
}

func TestRankIdempotent(t *testing.T) {
	records := []domain.CaseRecord{
		record("a", 0.2, 0.8, 0.1),
		record("b", 0.5, 0.5, 0.5),
		record("c", 0.9, 0.05, 0.3),
	}
	ix := NewIndex(records)
	q := []float64{0.7, 0.2, 0.4}
	first, err := ix.Rank(q)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	second, _ := ix.Rank(q)
	for i := range first {
		if first[i].Record.ID != second[i].Record.ID || first[i].Score != second[i].Score {
			t.Fatalf("rank not stable at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestRankMixedDimensionsFails(t *testing.T) {
	records := []domain.CaseRecord{
		record("three", 1, 0, 0),
		record("two", 1, 0),
	}
	_, err := Rank([]float64{1, 0, 0}, records)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestRankEmpty(t *testing.T) {
	got, err := Rank([]float64{1, 2}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results, got %d", len(got))
	}
}
