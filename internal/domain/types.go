package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// MaxExtraFields bounds how many unknown metadata keys a case may carry.
const MaxExtraFields = 32

// CaseMetadata describes one prior dispute case. Required fields are typed;
// keys the corpus adds later are kept verbatim in Extra.
type CaseMetadata struct {
	Title              string   `json:"title"`
	Summary            string   `json:"summary"`
	Trigger            string   `json:"the_trigger"`
	FatalMistake       string   `json:"the_fatal_mistake"`
	SeverityScore      *float64 `json:"severity_score,omitempty"`
	Quotes             []string `json:"brutal_reality_quotes,omitempty"`
	Checklist          []string `json:"pre_mortem_checklist,omitempty"`
	FinancialImpact    string   `json:"financial_impact,omitempty"`
	CommunityConsensus string   `json:"community_consensus,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownMetadataKeys = map[string]struct{}{
	"title": {}, "summary": {}, "the_trigger": {}, "the_fatal_mistake": {},
	"severity_score": {}, "brutal_reality_quotes": {}, "pre_mortem_checklist": {},
	"financial_impact": {}, "community_consensus": {},
}

// caseMetadataFields avoids recursion into the custom (un)marshalers.
type caseMetadataFields CaseMetadata

// UnmarshalJSON decodes the typed fields and collects unknown keys into Extra.
func (m *CaseMetadata) UnmarshalJSON(data []byte) error {
	var fields caseMetadataFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if _, ok := knownMetadataKeys[k]; ok {
			continue
		}
		if fields.Extra == nil {
			fields.Extra = make(map[string]json.RawMessage)
		}
		if len(fields.Extra) >= MaxExtraFields {
			return fmt.Errorf("metadata has more than %d extra fields", MaxExtraFields)
		}
		fields.Extra[k] = v
	}
	*m = CaseMetadata(fields)
	return nil
}

// MarshalJSON flattens Extra back into the metadata object.
func (m CaseMetadata) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(caseMetadataFields(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return base, nil
	}
	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		if _, ok := knownMetadataKeys[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, k := range keys {
		name, _ := json.Marshal(k)
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(m.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FirstQuote returns the first reality-check quote, if any.
func (m CaseMetadata) FirstQuote() (string, bool) {
	if len(m.Quotes) == 0 || m.Quotes[0] == "" {
		return "", false
	}
	return m.Quotes[0], true
}

// CaseRecord is one embedded case inside a snapshot.
type CaseRecord struct {
	ID        string       `json:"id"`
	Content   string       `json:"content"`
	Embedding []float64    `json:"embedding"`
	Metadata  CaseMetadata `json:"metadata"`
}

// Snapshot is the full, ordered case store as persisted on disk.
type Snapshot struct {
	Records []CaseRecord
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Dimension returns the shared embedding length, or 0 for an empty snapshot.
func (s *Snapshot) Dimension() int {
	if s.Len() == 0 {
		return 0
	}
	return len(s.Records[0].Embedding)
}

// Validate checks the store invariants: unique ids and a uniform, non-zero dimension.
func (s *Snapshot) Validate() error {
	seen := make(map[string]struct{}, s.Len())
	dim := s.Dimension()
	for i, r := range s.Records {
		if r.ID == "" {
			return fmt.Errorf("record %d has empty id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate record id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if len(r.Embedding) == 0 {
			return fmt.Errorf("record %q has empty embedding", r.ID)
		}
		if len(r.Embedding) != dim {
			return fmt.Errorf("%w: record %q has %d dimensions, store has %d", ErrDimensionMismatch, r.ID, len(r.Embedding), dim)
		}
	}
	return nil
}

// MarshalJSON encodes the snapshot as a bare array of records.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.Records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Records)
}

// UnmarshalJSON decodes a bare array of records.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &s.Records)
}

// ScoredCase is a case paired with its similarity to the current query.
type ScoredCase struct {
	Record CaseRecord
	Score  float64
}
