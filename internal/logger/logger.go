// Package logger provides structured logging for rentcase
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"rentcase/internal/domain"
)

// Logger wraps zerolog with rentcase-specific events
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console output for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "rentcase").
		Logger()
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}
	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog logger
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zlog
}

func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// Component returns a logger tagged with a component name
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

// LogQueryEvent logs one query lifecycle event. Failures log at error level,
// degraded retrieval and rejected input at warn, progress steps at debug.
func (l *Logger) LogQueryEvent(e domain.QueryEvent) {
	var ev *zerolog.Event
	switch e.Kind {
	case domain.EventRetrievalError, domain.EventStreamError:
		ev = l.zlog.Error()
	case domain.EventRetrievalDegraded, domain.EventInvalidInput:
		ev = l.zlog.Warn()
	case domain.EventRetrievalStart, domain.EventGenerationStart:
		ev = l.zlog.Debug()
	default:
		ev = l.zlog.Info()
	}
	ev = ev.
		Str("event", e.Kind).
		Str("phase", string(e.Phase)).
		Str("request_id", e.RequestID)

	switch e.Kind {
	case domain.EventChatStart, domain.EventInvalidInput:
		ev = ev.Int("query_length", e.QueryLength)
	case domain.EventRetrievalSuccess, domain.EventGenerationStart:
		ev = ev.Int("count", e.Count)
	}
	if e.Phase.Terminal() {
		ev = ev.Int64("duration_ms", e.Duration.Milliseconds())
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}
	ev.Msg(eventMessages[e.Kind])
}

var eventMessages = map[string]string{
	domain.EventChatStart:         "Incoming chat request",
	domain.EventRetrievalStart:    "Retrieving context",
	domain.EventRetrievalSuccess:  "Context retrieved",
	domain.EventRetrievalDegraded: "Retrieval degraded, continuing without context",
	domain.EventRetrievalError:    "Vector store search failed",
	domain.EventGenerationStart:   "Generating report",
	domain.EventStreamSuccess:     "Stream completed successfully",
	domain.EventStreamError:       "Stream finished with error",
	domain.EventInvalidInput:      "Rejected invalid query",
}

// Observer adapts the logger to domain.Observer
func (l *Logger) Observer() domain.Observer {
	return domain.ObserverFunc(l.LogQueryEvent)
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(addr, store string) {
	l.zlog.Info().
		Str("event", "server_start").
		Str("addr", addr).
		Str("store", store).
		Msg("rentcase server starting")
}

// LogServerShutdown logs server shutdown
func (l *Logger) LogServerShutdown() {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Msg("rentcase server shutting down")
}

// LogAPIError logs a request that failed before or outside the query lifecycle
func (l *Logger) LogAPIError(requestID, ip string, duration time.Duration, err error) {
	l.zlog.Error().
		Str("event", "api_error").
		Str("request_id", requestID).
		Str("ip", ip).
		Int64("duration_ms", duration.Milliseconds()).
		Err(err).
		Msg("Unhandled API error")
}

// LogIngest logs the outcome of building a snapshot
func (l *Logger) LogIngest(store string, records, dimension int, duration time.Duration, err error) {
	ev := l.zlog.Info()
	if err != nil {
		ev = l.zlog.Error().Err(err)
	}
	ev.Str("event", "ingest").
		Str("store", store).
		Int("records", records).
		Int("dimension", dimension).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("Snapshot build finished")
}
