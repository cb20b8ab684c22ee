package domain

import (
	"context"
	"time"
)

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	// Dimension returns the vector length, or 0 until it is known.
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
}

// Generator produces a structured Report from a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (*Report, error)
	Stream(ctx context.Context, prompt string) (ReportStream, error)
}

// ReportStream yields increasingly complete report snapshots. Next returns
// io.EOF once the terminal, validated snapshot has been delivered.
type ReportStream interface {
	Next() (*Report, error)
	Close() error
}

// Phase is a step in the lifecycle of a single query.
type Phase string

const (
	PhaseReceived          Phase = "received"
	PhaseRetrieving        Phase = "retrieving"
	PhaseRetrievalOK       Phase = "retrieval_ok"
	PhaseRetrievalDegraded Phase = "retrieval_degraded"
	PhaseGenerating        Phase = "generating"
	PhaseCompleted         Phase = "completed"
	PhaseFailed            Phase = "failed"
)

// Terminal reports whether no further transition follows p.
func (p Phase) Terminal() bool { return p == PhaseCompleted || p == PhaseFailed }

// Event kinds published by the query orchestrator.
const (
	EventChatStart         = "chat_start"
	EventRetrievalStart    = "retrieval_start"
	EventRetrievalSuccess  = "retrieval_success"
	EventRetrievalDegraded = "retrieval_degraded"
	EventRetrievalError    = "retrieval_error"
	EventGenerationStart   = "generation_start"
	EventStreamSuccess     = "stream_success"
	EventStreamError       = "stream_error"
	EventInvalidInput      = "invalid_input"
)

// QueryEvent is one observation of a query moving through its lifecycle.
type QueryEvent struct {
	Kind        string
	Phase       Phase
	RequestID   string
	QueryLength int
	Count       int
	Duration    time.Duration
	Err         error
}

// Observer receives lifecycle events. Implementations must be safe for
// concurrent use.
type Observer interface {
	Observe(QueryEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(QueryEvent)

// Observe calls f(e).
func (f ObserverFunc) Observe(e QueryEvent) { f(e) }
