package hashing

import (
	"context"
	"math"
	"testing"
)

func TestEmbedDeterministicAndNormalised(t *testing.T) {
	ctx := context.Background()
	a := NewEmbedder(64)
	b := NewEmbedder(64)
	v1, err := a.Embed(ctx, "Tenant painted the walls without permission")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v2, _ := b.Embed(ctx, "Tenant painted the walls without permission")
	if len(v1) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(v1))
	}
	norm := 0.0
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embedders disagree at %d", i)
		}
		norm += v1[i] * v1[i]
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("expected unit norm, got %v", norm)
	}
}

func TestEmbedStopwordsOnlyIsZero(t *testing.T) {
	v, err := NewEmbedder(16).Embed(context.Background(), "the and of")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
}

func TestEmbedRejectsBlank(t *testing.T) {
	if _, err := NewEmbedder(16).Embed(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestEmbedManyKeepsOrder(t *testing.T) {
	e := NewEmbedder(0)
	if e.Dimension() != DefaultDimension {
		t.Fatalf("expected default dimension, got %d", e.Dimension())
	}
	texts := []string{"security deposit", "late rent", "mould in bathroom"}
	vecs, err := e.EmbedMany(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	for i, text := range texts {
		single, _ := e.Embed(context.Background(), text)
		for j := range single {
			if single[j] != vecs[i][j] {
				t.Fatalf("vector %d differs from single embed", i)
			}
		}
	}
}
