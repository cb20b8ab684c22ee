// Package app assembles rentcase components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"rentcase/internal/casestore"
	"rentcase/internal/config"
	"rentcase/internal/domain"
	"rentcase/internal/embedding/gemini"
	"rentcase/internal/embedding/hashing"
	"rentcase/internal/embedding/openai"
	"rentcase/internal/logger"
	"rentcase/internal/metrics"
	"rentcase/internal/observability"
	"rentcase/internal/retrieval"
	"rentcase/internal/service"

	gemgen "rentcase/internal/generation/gemini"
)

// App holds the wired components for one process.
type App struct {
	Config    *config.AppConfig
	Log       *logger.Logger
	Metrics   *metrics.Metrics
	Tracing   *observability.TracerProvider
	Embedder  domain.Embedder
	Cache     *casestore.Cache
	Retrieval *retrieval.Service
	// Service is nil unless generation was requested.
	Service *service.QueryService

	closers []func() error
}

// Options selects optional components.
type Options struct {
	// Generation builds the generator and query service. Search-only
	// commands leave it off so they run without a generator key.
	Generation bool
}

// New wires the retrieval stack and, when asked, the query service.
func New(ctx context.Context, cfg *config.AppConfig, log *logger.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.NewMetrics()}

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    "production",
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	a.Tracing = tp

	emb, closeEmb, err := NewEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return nil, errors.Join(err, a.Close(ctx))
	}
	a.Embedder = emb
	a.closers = append(a.closers, closeEmb)

	backend, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, errors.Join(err, a.Close(ctx))
	}
	a.Cache = casestore.NewCache(backend)
	a.Retrieval = retrieval.NewService(a.Cache, emb)

	if opts.Generation {
		gen, err := gemgen.New(ctx, gemgen.Config{
			APIKeyEnv:   cfg.Generator.APIKeyEnv,
			Model:       cfg.Generator.Model,
			Temperature: cfg.Generator.Temperature,
		})
		if err != nil {
			return nil, errors.Join(err, a.Close(ctx))
		}
		a.closers = append(a.closers, gen.Close)
		a.Service = service.NewQueryService(a.Retrieval, gen,
			service.WithObserver(a.Observer()),
			service.WithRetrievalOptions(a.RetrievalOptions()),
			service.WithTimeout(time.Duration(cfg.Generator.TimeoutSecs)*time.Second),
		)
	}
	return a, nil
}

// Observer fans query events out to the logger and metrics.
func (a *App) Observer() domain.Observer {
	return observability.Fanout(a.Log.Observer(), a.Metrics)
}

// RetrievalOptions returns the configured TopK and Threshold.
func (a *App) RetrievalOptions() retrieval.Options {
	return retrieval.Options{TopK: a.Config.Retrieval.TopK, Threshold: a.Config.Retrieval.Threshold}
}

// Close releases clients and flushes traces.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.Tracing != nil {
		errs = append(errs, a.Tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// NewEmbedder builds the configured embedder. The returned close function is
// never nil.
func NewEmbedder(ctx context.Context, cfg config.EmbedderConfig) (domain.Embedder, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Type {
	case "gemini":
		c := cfg.Gemini
		if c == nil {
			c = &config.GeminiEmbedderConfig{}
		}
		e, err := gemini.New(ctx, gemini.Config{APIKeyEnv: c.APIKeyEnv, Model: c.Model, BatchSize: c.BatchSize})
		if err != nil {
			return nil, noop, err
		}
		return e, e.Close, nil
	case "openai":
		c := cfg.OpenAI
		if c == nil {
			c = &config.OpenAIEmbedderConfig{APIKeyEnv: "OPENAI_API_KEY"}
		}
		e, err := openai.NewClient(openai.Config{
			BaseURL:   c.BaseURL,
			APIKeyEnv: c.APIKeyEnv,
			Model:     c.Model,
			Timeout:   time.Duration(c.TimeoutSecs) * time.Second,
			BatchSize: c.BatchSize,
		})
		if err != nil {
			return nil, noop, err
		}
		return e, noop, nil
	case "hashing":
		dim := hashing.DefaultDimension
		if cfg.Hashing != nil && cfg.Hashing.Dimension > 0 {
			dim = cfg.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown embedder type %q", cfg.Type)
	}
}

// OpenStore resolves the snapshot backend, reading S3 credentials from the
// environment variables the config names.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (casestore.Backend, error) {
	var s3cfg casestore.S3Config
	if cfg.S3 != nil {
		s3cfg.Region = cfg.S3.Region
		if cfg.S3.AccessKeyEnv != "" {
			s3cfg.AccessKey = os.Getenv(cfg.S3.AccessKeyEnv)
		}
		if cfg.S3.SecretKeyEnv != "" {
			s3cfg.SecretKey = os.Getenv(cfg.S3.SecretKeyEnv)
		}
	}
	return casestore.OpenBackend(ctx, cfg.Location, s3cfg)
}

// IngestResult describes a completed snapshot build.
type IngestResult struct {
	Records   int
	Dimension int
	Store     string
	Duration  time.Duration
}

// Ingest embeds every entry in cfg.Ingest.EntriesDir and replaces the
// snapshot. The embedder is created first so a missing key fails before any
// work is done. The existing snapshot is untouched on failure.
func Ingest(ctx context.Context, cfg *config.AppConfig, log *logger.Logger, progress func(done, total int)) (*IngestResult, error) {
	start := time.Now()
	emb, closeEmb, err := NewEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return nil, err
	}
	defer closeEmb()

	backend, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	entries, err := casestore.ReadEntries(cfg.Ingest.EntriesDir)
	if err != nil {
		log.LogIngest(backend.String(), 0, 0, time.Since(start), err)
		return nil, err
	}
	snap, err := casestore.Build(ctx, emb, entries, casestore.BuildOptions{BatchSize: cfg.Ingest.BatchSize, Progress: progress})
	if err == nil {
		err = casestore.Save(ctx, backend, snap)
	}
	if err != nil {
		log.LogIngest(backend.String(), 0, 0, time.Since(start), err)
		return nil, err
	}
	res := &IngestResult{Records: snap.Len(), Dimension: snap.Dimension(), Store: backend.String(), Duration: time.Since(start)}
	log.LogIngest(res.Store, res.Records, res.Dimension, res.Duration, nil)
	return res, nil
}
