package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"rentcase/internal/domain"
	"rentcase/internal/observability"
	"rentcase/internal/prompt"
	"rentcase/internal/retrieval"
)

// DefaultTimeout bounds a whole query, retrieval and generation included.
const DefaultTimeout = 60 * time.Second

// Retriever finds cases relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, opts retrieval.Options) (retrieval.Result, error)
}

// QueryService answers questions by retrieving similar cases and asking the
// generator for a structured report grounded in them.
type QueryService struct {
	retriever Retriever
	generator domain.Generator
	observer  domain.Observer
	search    retrieval.Options
	timeout   time.Duration
}

// Option is a functional option for QueryService.
type Option func(*QueryService)

// WithObserver sets the lifecycle observer.
func WithObserver(o domain.Observer) Option {
	return func(s *QueryService) {
		s.observer = o
	}
}

// WithRetrievalOptions sets TopK and Threshold for every query.
func WithRetrievalOptions(opts retrieval.Options) Option {
	return func(s *QueryService) {
		s.search = opts
	}
}

// WithTimeout sets the per-query deadline. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *QueryService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewQueryService creates a query service.
func NewQueryService(retriever Retriever, generator domain.Generator, opts ...Option) *QueryService {
	s := &QueryService{
		retriever: retriever,
		generator: generator,
		observer:  domain.ObserverFunc(func(domain.QueryEvent) {}),
		search:    retrieval.DefaultOptions(),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer is the complete result of a query.
type Answer struct {
	RequestID string
	Report    *domain.Report
	Cases     []domain.ScoredCase
	// Degraded is the retrieval failure the answer was generated without.
	Degraded error
}

type requestIDKey struct{}

// WithRequestID attaches id to ctx so events carry the caller's request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// query tracks one request through its lifecycle.
type query struct {
	svc   *QueryService
	id    string
	text  string
	start time.Time
}

func (q *query) emit(kind string, phase domain.Phase, count int, err error) {
	q.svc.observer.Observe(domain.QueryEvent{
		Kind:        kind,
		Phase:       phase,
		RequestID:   q.id,
		QueryLength: len(q.text),
		Count:       count,
		Duration:    time.Since(q.start),
		Err:         err,
	})
}

func (s *QueryService) begin(ctx context.Context, text string) (*query, error) {
	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	q := &query{svc: s, id: id, text: text, start: time.Now()}
	q.emit(domain.EventChatStart, domain.PhaseReceived, 0, nil)
	if strings.TrimSpace(text) == "" {
		err := fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
		q.emit(domain.EventInvalidInput, domain.PhaseFailed, 0, err)
		return nil, err
	}
	return q, nil
}

// retrieve runs retrieval and renders the prompt. Degraded retrieval yields an
// empty context; only hard errors are returned.
func (q *query) retrieve(ctx context.Context) (retrieval.Result, string, error) {
	q.emit(domain.EventRetrievalStart, domain.PhaseRetrieving, 0, nil)
	ctx, span := observability.StartRetrievalSpan(ctx, q.svc.search.TopK, q.svc.search.Threshold)
	defer span.End()
	res, err := q.svc.retriever.Search(ctx, q.text, q.svc.search)
	if err != nil {
		observability.RecordError(span, err)
		q.emit(domain.EventRetrievalError, domain.PhaseFailed, 0, err)
		return res, "", err
	}
	observability.RecordRetrievalResult(span, len(res.Cases), res.Degraded)
	if res.Degraded != nil {
		q.emit(domain.EventRetrievalDegraded, domain.PhaseRetrievalDegraded, 0, res.Degraded)
		res.Cases = nil
	} else {
		q.emit(domain.EventRetrievalSuccess, domain.PhaseRetrievalOK, len(res.Cases), nil)
	}
	return res, prompt.Build(prompt.FormatContext(res.Cases), q.text), nil
}

func generationError(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrGenerationFailure) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w: %w", domain.ErrGenerationFailure, ctxErr, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrGenerationFailure, err)
}

// Answer runs a query to completion.
func (s *QueryService) Answer(ctx context.Context, text string) (*Answer, error) {
	q, err := s.begin(ctx, text)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx, root := observability.StartQuerySpan(ctx, q.id, len(text))
	defer root.End()

	res, instructions, err := q.retrieve(ctx)
	if err != nil {
		observability.RecordError(root, err)
		return nil, err
	}

	q.emit(domain.EventGenerationStart, domain.PhaseGenerating, len(res.Cases), nil)
	gctx, gen := observability.StartGenerationSpan(ctx, s.generator.Name(), false)
	report, err := s.generator.Generate(gctx, instructions)
	if err == nil {
		if verr := report.Validate(); verr != nil {
			err = fmt.Errorf("%w: %w", domain.ErrGenerationFailure, verr)
		}
	}
	if err != nil {
		err = generationError(ctx, err)
		observability.RecordError(gen, err)
		observability.RecordError(root, err)
		gen.End()
		q.emit(domain.EventStreamError, domain.PhaseFailed, len(res.Cases), err)
		return nil, err
	}
	gen.End()
	q.emit(domain.EventStreamSuccess, domain.PhaseCompleted, len(res.Cases), nil)
	return &Answer{RequestID: q.id, Report: report, Cases: res.Cases, Degraded: res.Degraded}, nil
}

// StreamingAnswer delivers report snapshots as they are generated. It
// implements domain.ReportStream; the last report before io.EOF is complete
// and valid.
type StreamingAnswer struct {
	RequestID string
	Cases     []domain.ScoredCase
	Degraded  error

	q      *query
	ctx    context.Context
	cancel context.CancelFunc
	inner  domain.ReportStream
	spans  []trace.Span

	mu       sync.Mutex
	last     *domain.Report
	finished bool
}

var _ domain.ReportStream = (*StreamingAnswer)(nil)

// AnswerStream retrieves context and starts generation. Retrieval completes
// before it returns; the report arrives through the returned stream.
func (s *QueryService) AnswerStream(ctx context.Context, text string) (*StreamingAnswer, error) {
	q, err := s.begin(ctx, text)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	ctx, root := observability.StartQuerySpan(ctx, q.id, len(text))

	res, instructions, err := q.retrieve(ctx)
	if err != nil {
		observability.RecordError(root, err)
		root.End()
		cancel()
		return nil, err
	}

	q.emit(domain.EventGenerationStart, domain.PhaseGenerating, len(res.Cases), nil)
	gctx, gen := observability.StartGenerationSpan(ctx, s.generator.Name(), true)
	inner, err := s.generator.Stream(gctx, instructions)
	if err != nil {
		err = generationError(ctx, err)
		for _, sp := range []trace.Span{gen, root} {
			observability.RecordError(sp, err)
			sp.End()
		}
		q.emit(domain.EventStreamError, domain.PhaseFailed, len(res.Cases), err)
		cancel()
		return nil, err
	}
	return &StreamingAnswer{
		RequestID: q.id,
		Cases:     res.Cases,
		Degraded:  res.Degraded,
		q:         q,
		ctx:       ctx,
		cancel:    cancel,
		inner:     inner,
		spans:     []trace.Span{gen, root},
	}, nil
}

// Next returns the next snapshot, or io.EOF after the final report.
func (a *StreamingAnswer) Next() (*domain.Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished {
		return nil, io.EOF
	}
	r, err := a.inner.Next()
	switch {
	case errors.Is(err, io.EOF):
		if a.last == nil {
			return nil, a.fail(fmt.Errorf("%w: stream ended without a report", domain.ErrGenerationFailure))
		}
		a.finish()
		a.q.emit(domain.EventStreamSuccess, domain.PhaseCompleted, len(a.Cases), nil)
		return nil, io.EOF
	case err != nil:
		return nil, a.fail(generationError(a.ctx, err))
	}
	a.last = r
	return r, nil
}

// Final returns the last report delivered, which is the complete report once
// Next has returned io.EOF.
func (a *StreamingAnswer) Final() *domain.Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Close abandons generation. Closing before io.EOF records the query as failed.
func (a *StreamingAnswer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished {
		return nil
	}
	a.fail(fmt.Errorf("%w: stream closed before completion: %w", domain.ErrGenerationFailure, context.Canceled))
	return nil
}

func (a *StreamingAnswer) fail(err error) error {
	for _, sp := range a.spans {
		observability.RecordError(sp, err)
	}
	a.finish()
	a.q.emit(domain.EventStreamError, domain.PhaseFailed, len(a.Cases), err)
	return err
}

func (a *StreamingAnswer) finish() {
	a.finished = true
	_ = a.inner.Close()
	for _, sp := range a.spans {
		sp.End()
	}
	a.cancel()
}
