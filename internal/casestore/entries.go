// Package casestore builds, persists and caches the case store snapshot.
package casestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rentcase/internal/domain"
)

// RawEntry is one case definition before embedding.
type RawEntry struct {
	ID       string
	Metadata domain.CaseMetadata
}

// Content returns the exact text embedded for a case. The labels and field
// order are fixed; changing them invalidates every existing snapshot.
func Content(m domain.CaseMetadata) string {
	return fmt.Sprintf("Title: %s\nSummary: %s\nTrigger Event: %s\nFatal Mistake: %s",
		m.Title, m.Summary, m.Trigger, m.FatalMistake)
}

// Validate rejects entries that would be embedded from empty input.
func (e RawEntry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: entry has empty id", domain.ErrInvalidInput)
	}
	required := []struct{ name, value string }{
		{"title", e.Metadata.Title},
		{"summary", e.Metadata.Summary},
		{"the_trigger", e.Metadata.Trigger},
		{"the_fatal_mistake", e.Metadata.FatalMistake},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: entry %q has empty %s", domain.ErrInvalidInput, e.ID, f.name)
		}
	}
	return nil
}

// ReadEntries loads every *.json case definition in dir, ordered by file
// name. The file name becomes the case id.
func ReadEntries(dir string) ([]RawEntry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	entries := make([]RawEntry, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		var meta domain.CaseMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("parse %s: %w", m, err)
		}
		entries = append(entries, RawEntry{ID: filepath.Base(m), Metadata: meta})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no .json case entries found in %s", dir)
	}
	return entries, nil
}
