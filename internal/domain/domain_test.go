package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCaseMetadataKeepsExtraFields(t *testing.T) {
	in := `{"title":"Mould","summary":"s","the_trigger":"t","the_fatal_mistake":"m","landlord_type":"agency","year":2021}`
	var m CaseMetadata
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatal(err)
	}
	if m.Title != "Mould" || m.Trigger != "t" {
		t.Fatalf("typed fields: %+v", m)
	}
	if len(m.Extra) != 2 || string(m.Extra["landlord_type"]) != `"agency"` {
		t.Fatalf("extra: %v", m.Extra)
	}

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"landlord_type":"agency"`) || !strings.Contains(string(out), `"year":2021`) {
		t.Fatalf("extras not flattened: %s", out)
	}
	if !json.Valid(out) {
		t.Fatalf("invalid json: %s", out)
	}
}

func TestCaseMetadataRejectsTooManyExtras(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"title":"x"`)
	for i := 0; i <= MaxExtraFields; i++ {
		fmt.Fprintf(&b, `,"k%d":1`, i)
	}
	b.WriteString("}")
	var m CaseMetadata
	if err := json.Unmarshal([]byte(b.String()), &m); err == nil {
		t.Fatal("expected error")
	}
}

func TestFirstQuote(t *testing.T) {
	if _, ok := (CaseMetadata{}).FirstQuote(); ok {
		t.Fatal("no quotes should report false")
	}
	if q, ok := (CaseMetadata{Quotes: []string{"pay up", "other"}}).FirstQuote(); !ok || q != "pay up" {
		t.Fatalf("got %q %v", q, ok)
	}
}

func TestSnapshotValidate(t *testing.T) {
	tests := []struct {
		name     string
		records  []CaseRecord
		wantErr  bool
		mismatch bool
	}{
		{"empty", nil, false, false},
		{"uniform", []CaseRecord{{ID: "a", Embedding: []float64{1, 0}}, {ID: "b", Embedding: []float64{0, 1}}}, false, false},
		{"duplicate id", []CaseRecord{{ID: "a", Embedding: []float64{1}}, {ID: "a", Embedding: []float64{1}}}, true, false},
		{"empty id", []CaseRecord{{Embedding: []float64{1}}}, true, false},
		{"empty embedding", []CaseRecord{{ID: "a"}}, true, false},
		{"mixed dimensions", []CaseRecord{{ID: "a", Embedding: []float64{1, 0}}, {ID: "b", Embedding: []float64{1, 0, 0}}}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Snapshot{Records: tt.records}).Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.mismatch && !errors.Is(err, ErrDimensionMismatch) {
				t.Fatalf("want ErrDimensionMismatch, got %v", err)
			}
		})
	}
}

func TestSnapshotIsBareArray(t *testing.T) {
	data, err := json.Marshal(Snapshot{})
	if err != nil || string(data) != "[]" {
		t.Fatalf("got %s, %v", data, err)
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(`[{"id":"a.json","content":"c","embedding":[0.5],"metadata":{"title":"T"}}]`), &s); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 || s.Dimension() != 1 || s.Records[0].Metadata.Title != "T" {
		t.Fatalf("got %+v", s)
	}
	var nilSnap *Snapshot
	if nilSnap.Len() != 0 || nilSnap.Dimension() != 0 {
		t.Fatal("nil snapshot should be empty")
	}
}

func validReport() *Report {
	return &Report{
		Diagnosis:          Diagnosis{Title: "Deposit dispute", Summary: "s", Severity: "High"},
		RiskAssessment:     RiskAssessment{LegalRisk: "l", FinancialRisk: "f", Score: 70},
		DecisionTree:       []DecisionOption{{ID: "a", Label: "Negotiate"}},
		PreMortemChecklist: []string{},
	}
}

func TestReportValidate(t *testing.T) {
	if err := validReport().Validate(); err != nil {
		t.Fatal(err)
	}
	var nilReport *Report
	if err := nilReport.Validate(); err == nil {
		t.Fatal("nil report should fail")
	}

	r := validReport()
	r.Diagnosis.Severity = ""
	r.PreMortemChecklist = nil
	err := r.Validate()
	if err == nil || !strings.Contains(err.Error(), "diagnosis.severity") || !strings.Contains(err.Error(), "preMortemChecklist") {
		t.Fatalf("got %v", err)
	}

	r = validReport()
	r.RiskAssessment.Score = 101
	if err := r.Validate(); err == nil {
		t.Fatal("score out of range should fail")
	}

	r = validReport()
	r.DecisionTree = []DecisionOption{{ID: "a"}}
	if err := r.Validate(); err == nil {
		t.Fatal("option without label should fail")
	}
}

func TestRecoverable(t *testing.T) {
	for _, err := range []error{ErrStoreNotFound, ErrStoreCorrupt, fmt.Errorf("x: %w", ErrEmbeddingFailure)} {
		if !Recoverable(err) {
			t.Errorf("%v should be recoverable", err)
		}
	}
	for _, err := range []error{ErrDimensionMismatch, ErrGenerationFailure, ErrInvalidInput, errors.New("other")} {
		if Recoverable(err) {
			t.Errorf("%v should not be recoverable", err)
		}
	}
}

func TestPhaseTerminal(t *testing.T) {
	if !PhaseCompleted.Terminal() || !PhaseFailed.Terminal() || PhaseGenerating.Terminal() {
		t.Fatal("terminal phases wrong")
	}
}
