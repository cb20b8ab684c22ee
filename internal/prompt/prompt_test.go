package prompt

import (
	"strings"
	"testing"

	"rentcase/internal/domain"
)

func scored(m domain.CaseMetadata) domain.ScoredCase {
	return domain.ScoredCase{Record: domain.CaseRecord{ID: m.Title, Metadata: m}, Score: 0.9}
}

func TestFormatContextEmpty(t *testing.T) {
	if got := FormatContext(nil); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatContext(t *testing.T) {
	cases := []domain.ScoredCase{
		scored(domain.CaseMetadata{
			Title:              "Painted walls",
			Trigger:            "Repainting",
			FatalMistake:       "No consent",
			Summary:            "Deposit withheld",
			CommunityConsensus: "Tenant at fault",
			Quotes:             []string{"Get it in writing.", "second"},
		}),
		scored(domain.CaseMetadata{
			Title:        "Mould",
			Trigger:      "Leak",
			FatalMistake: "Late report",
			Summary:      "Rent abated",
		}),
	}
	want := "\nCase #1: Painted walls\nTrigger: Repainting\nMistake: No consent\nSummary: Deposit withheld\nConsensus: Tenant at fault\nQuote: Get it in writing.\n" +
		"\n---\n" +
		"\nCase #2: Mould\nTrigger: Leak\nMistake: Late report\nSummary: Rent abated\nConsensus: N/A\nQuote: N/A\n"
	if got := FormatContext(cases); got != want {
		t.Fatalf("got\n%q\nwant\n%q", got, want)
	}
}

func TestBuildIncludesContextAndQuery(t *testing.T) {
	ctx := FormatContext([]domain.ScoredCase{scored(domain.CaseMetadata{Title: "Painted walls"})})
	out := Build(ctx, "My landlord kept my deposit")

	for _, want := range []string{"Case #1: Painted walls", `"My landlord kept my deposit"`, NoPrecedent, "PRE-MORTEM CHECKLIST"} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(out, NoContextMarker) {
		t.Error("marker present despite context")
	}
}

func TestBuildMarksMissingContext(t *testing.T) {
	out := Build("", "question")
	if !strings.Contains(out, NoContextMarker) {
		t.Fatal("missing context marker")
	}
	if strings.Index(out, NoContextMarker) > strings.Index(out, "USER QUERY") {
		t.Fatal("marker rendered outside the context section")
	}
}

func TestBuildDoesNotEscape(t *testing.T) {
	out := Build("x", `rent < $500 & "late"`)
	if !strings.Contains(out, `rent < $500 & "late"`) {
		t.Fatal("query was escaped")
	}
}
