// Package generation turns incremental model output into report snapshots.
package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"rentcase/internal/domain"
)

// ChunkSource yields raw text fragments of a JSON document. Next returns
// io.EOF after the last fragment.
type ChunkSource interface {
	Next() (string, error)
	Close() error
}

// Stream accumulates chunks and implements domain.ReportStream. Each Next
// returns a report parsed from the longest completable prefix seen so far,
// skipping prefixes that add nothing new. The terminal report is parsed
// strictly and must validate.
type Stream struct {
	src    ChunkSource
	buf    strings.Builder
	last   string
	done   bool
	closed bool
}

var _ domain.ReportStream = (*Stream)(nil)

// NewStream wraps src.
func NewStream(src ChunkSource) *Stream {
	return &Stream{src: src}
}

// Next returns the next snapshot, the terminal report, or io.EOF once the
// terminal report has been returned.
func (s *Stream) Next() (*domain.Report, error) {
	if s.done {
		return nil, io.EOF
	}
	for {
		chunk, err := s.src.Next()
		if errors.Is(err, io.EOF) {
			s.done = true
			return s.final()
		}
		if err != nil {
			s.done = true
			return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailure, err)
		}
		s.buf.WriteString(chunk)

		doc, ok := CompletePartial(s.buf.String())
		if !ok || doc == s.last {
			continue
		}
		var r domain.Report
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			continue
		}
		s.last = doc
		return &r, nil
	}
}

// Close stops the stream. Further Next calls return io.EOF.
func (s *Stream) Close() error {
	s.done = true
	if s.closed {
		return nil
	}
	s.closed = true
	return s.src.Close()
}

// Text returns everything received so far.
func (s *Stream) Text() string { return s.buf.String() }

func (s *Stream) final() (*domain.Report, error) {
	return ParseReport(s.buf.String())
}

// ParseReport decodes a complete report and validates it.
func ParseReport(text string) (*domain.Report, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrGenerationFailure)
	}
	var r domain.Report
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return nil, fmt.Errorf("%w: decode report: %w", domain.ErrGenerationFailure, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailure, err)
	}
	return &r, nil
}

// Final drains stream and returns its terminal report. The stream is closed
// on return.
func Final(stream domain.ReportStream) (*domain.Report, error) {
	defer stream.Close()
	var last *domain.Report
	for {
		r, err := stream.Next()
		if errors.Is(err, io.EOF) {
			if last == nil {
				return nil, fmt.Errorf("%w: stream ended without a report", domain.ErrGenerationFailure)
			}
			return last, nil
		}
		if err != nil {
			return nil, err
		}
		last = r
	}
}
