package generation

import (
	"errors"
	"io"
	"strings"
	"testing"

	"rentcase/internal/domain"
)

const sampleReport = `{"diagnosis":{"title":"Unauthorized Alteration","summary":"Painting without written consent","severity":"High"},` +
	`"riskAssessment":{"legalRisk":"medium","financialRisk":"high","score":72.5,"financialImpactEstimate":"$500 - $1500"},` +
	`"decisionTree":[{"id":"repaint","label":"Repaint before move-out","description":"Restore the original colour","recommended":true,"riskLevel":"Low"},` +
	`{"id":"negotiate","label":"Negotiate deduction","description":"Offer a partial deduction","recommended":false,"riskLevel":"Medium"}],` +
	`"realityCheck":{"quote":"Verbal OK means nothing at move-out.","context":"Deposit dispute thread"},` +
	`"preMortemChecklist":["Is consent in writing?","Do you have move-in photos?"]}`

type fakeSource struct {
	chunks []string
	err    error
	closed int
}

func (f *fakeSource) Next() (string, error) {
	if len(f.chunks) == 0 {
		if f.err != nil {
			return "", f.err
		}
		return "", io.EOF
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	return c, nil
}

func (f *fakeSource) Close() error {
	f.closed++
	return nil
}

func split(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

func TestStreamYieldsGrowingSnapshots(t *testing.T) {
	src := &fakeSource{chunks: split(sampleReport, 17)}
	s := NewStream(src)

	var snaps []*domain.Report
	for {
		r, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		snaps = append(snaps, r)
	}
	if len(snaps) < 3 {
		t.Fatalf("got %d snapshots, want several", len(snaps))
	}
	final := snaps[len(snaps)-1]
	if err := final.Validate(); err != nil {
		t.Fatalf("terminal snapshot invalid: %v", err)
	}
	if final.RiskAssessment.Score != 72.5 || len(final.DecisionTree) != 2 || !final.DecisionTree[0].Recommended {
		t.Fatalf("terminal snapshot wrong: %+v", final)
	}
	// checklist items only ever grow
	prev := 0
	for _, r := range snaps {
		if len(r.PreMortemChecklist) < prev {
			t.Fatalf("checklist shrank from %d to %d", prev, len(r.PreMortemChecklist))
		}
		prev = len(r.PreMortemChecklist)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("after terminal: %v", err)
	}
	if s.Text() != sampleReport {
		t.Fatal("accumulated text differs from input")
	}
}

func TestStreamPartialDiagnosis(t *testing.T) {
	s := NewStream(&fakeSource{chunks: []string{`{"diagnosis":{"title":"Unauth`, `orized"`}})
	r, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if r.Diagnosis.Title != "Unauth" {
		t.Fatalf("first snapshot title %q", r.Diagnosis.Title)
	}
	r, err = s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if r.Diagnosis.Title != "Unauthorized" {
		t.Fatalf("second snapshot title %q", r.Diagnosis.Title)
	}
}

func TestStreamIncompleteTerminalFails(t *testing.T) {
	s := NewStream(&fakeSource{chunks: []string{`{"diagnosis":{"title":"x"}}`}})
	if _, err := s.Next(); err != nil {
		t.Fatal(err)
	}
	_, err := s.Next()
	if !errors.Is(err, domain.ErrGenerationFailure) {
		t.Fatalf("got %v, want ErrGenerationFailure", err)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("after failure: %v", err)
	}
}

func TestStreamSourceError(t *testing.T) {
	boom := errors.New("connection reset")
	s := NewStream(&fakeSource{chunks: []string{`{"diag`}, err: boom})
	var err error
	for err == nil {
		_, err = s.Next()
	}
	if !errors.Is(err, domain.ErrGenerationFailure) || !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	src := &fakeSource{chunks: split(sampleReport, 40)}
	s := NewStream(src)
	if _, err := s.Next(); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	_ = s.Close()
	if src.closed != 1 {
		t.Fatalf("source closed %d times", src.closed)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("after close: %v", err)
	}
}

func TestFinal(t *testing.T) {
	src := &fakeSource{chunks: split(sampleReport, 5)}
	r, err := Final(NewStream(src))
	if err != nil {
		t.Fatal(err)
	}
	if r.Diagnosis.Severity != "High" {
		t.Fatalf("got %+v", r.Diagnosis)
	}
	if src.closed != 1 {
		t.Fatal("source not closed")
	}

	_, err = Final(NewStream(&fakeSource{}))
	if !errors.Is(err, domain.ErrGenerationFailure) {
		t.Fatalf("empty stream: %v", err)
	}
}

func TestParseReport(t *testing.T) {
	if _, err := ParseReport(sampleReport); err != nil {
		t.Fatal(err)
	}
	bad := strings.Replace(sampleReport, `"score":72.5`, `"score":140`, 1)
	if _, err := ParseReport(bad); !errors.Is(err, domain.ErrGenerationFailure) {
		t.Fatalf("out of range score: %v", err)
	}
	if _, err := ParseReport("not json"); !errors.Is(err, domain.ErrGenerationFailure) {
		t.Fatalf("garbage: %v", err)
	}
}
