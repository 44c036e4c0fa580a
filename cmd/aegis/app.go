package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"mercator-hq/aegis/pkg/advisory"
	"mercator-hq/aegis/pkg/auditing"
	"mercator-hq/aegis/pkg/config"
	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/evidence/export"
	"mercator-hq/aegis/pkg/evidence/recorder"
	"mercator-hq/aegis/pkg/evidence/retention"
	"mercator-hq/aegis/pkg/evidence/storage"
	"mercator-hq/aegis/pkg/generation"
	"mercator-hq/aegis/pkg/identity"
	"mercator-hq/aegis/pkg/knowledge"
	knowledgegit "mercator-hq/aegis/pkg/knowledge/git"
	"mercator-hq/aegis/pkg/moderation"
	"mercator-hq/aegis/pkg/pipeline"
	"mercator-hq/aegis/pkg/policy"
	"mercator-hq/aegis/pkg/review"
	"mercator-hq/aegis/pkg/screening"
	"mercator-hq/aegis/pkg/session"
	"mercator-hq/aegis/pkg/telemetry/health"
	"mercator-hq/aegis/pkg/telemetry/metrics"
	"mercator-hq/aegis/pkg/telemetry/tracing"
)

// app owns every long-lived component built from the configuration.
// Components are closed in reverse construction order.
type app struct {
	cfg *config.Config

	knowledge *knowledge.Store
	packRepo  *knowledgegit.Repository
	storage   evidence.Storage
	recorder  *recorder.Recorder
	exports   *export.Service
	pruner    *retention.Pruner
	queue     *review.MemoryQueue
	sessions  session.Store
	tokens    *identity.TokenManager
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	health    *health.Checker
	pipeline  *pipeline.Pipeline

	closers []io.Closer
	logger  *slog.Logger
}

// appOptions trims the app for commands that need only part of it.
type appOptions struct {
	// withoutTelemetry skips metrics and tracing.
	withoutTelemetry bool
	// withoutPipeline builds only storage, exports, knowledge, sessions and
	// identity.
	withoutPipeline bool
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// buildApp wires the components selected by cfg. On error everything built
// so far is closed.
func buildApp(ctx context.Context, cfg *config.Config, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg, logger: slog.Default().With("component", "aegis")}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	packPath := cfg.Knowledge.Path
	if cfg.Knowledge.Git.Repository != "" {
		if a.packRepo, err = knowledgegit.NewRepository(cfg.Knowledge.Git); err != nil {
			return nil, err
		}
		head, err := a.packRepo.Sync(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to sync knowledge repository: %w", err)
		}
		a.logger.Info("Knowledge repository synced",
			"repository", cfg.Knowledge.Git.Repository,
			"branch", cfg.Knowledge.Git.Branch,
			"commit", head.Short(),
		)
		packPath = a.packRepo.PackPath()
	}
	if a.knowledge, err = knowledge.NewStore(packPath); err != nil {
		return nil, fmt.Errorf("failed to load knowledge pack: %w", err)
	}

	if a.storage, err = openStorage(ctx, cfg.Evidence); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.storage)

	if err := a.buildSessions(ctx); err != nil {
		return nil, err
	}

	if cfg.Identity.Enabled {
		if a.tokens, err = identity.NewTokenManager(identity.Config{
			Secret: cfg.Identity.Secret,
			Issuer: cfg.Identity.Issuer,
			TTL:    cfg.Identity.TokenTTL,
		}, a.sessions, a.knowledge); err != nil {
			return nil, fmt.Errorf("failed to create token manager: %w", err)
		}
	}

	if err := a.buildExports(ctx); err != nil {
		return nil, err
	}

	if opts.withoutPipeline {
		return a, nil
	}

	if !opts.withoutTelemetry {
		a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
		if a.tracer, err = tracing.New(&cfg.Telemetry.Tracing, Version); err != nil {
			return nil, fmt.Errorf("failed to create tracer: %w", err)
		}
		a.closers = append(a.closers, closerFunc(func() error {
			return a.tracer.Shutdown(context.Background())
		}))
	}

	classifier, err := a.buildClassifier()
	if err != nil {
		return nil, err
	}
	generator, err := a.buildGenerator(ctx)
	if err != nil {
		return nil, err
	}

	a.recorder = recorder.New(a.storage, a.knowledge, &recorder.Config{
		Async:           cfg.Evidence.Recorder.Async,
		AsyncBuffer:     cfg.Evidence.Recorder.AsyncBuffer,
		WriteTimeout:    cfg.Evidence.Recorder.WriteTimeout,
		StorageLocation: cfg.Evidence.Backend,
	})
	a.closers = append(a.closers, a.recorder)

	emitter, err := a.buildReview(ctx)
	if err != nil {
		return nil, err
	}

	popts := []pipeline.Option{pipeline.WithReview(emitter)}
	if a.metrics != nil {
		popts = append(popts, pipeline.WithObserver(a.metrics))
	}
	if a.tracer != nil {
		popts = append(popts, pipeline.WithTracer(a.tracer))
	}
	a.pipeline = pipeline.New(pipeline.Stages{
		Screener:  screening.New(a.knowledge, classifier),
		Policy:    policy.New(a.knowledge),
		Generator: generator,
		Auditor:   auditing.New(a.knowledge, classifier),
		Composer:  advisory.New(a.knowledge),
		Recorder:  a.recorder,
	}, pipeline.Config{
		GenerationTimeout: cfg.Generation.Timeout,
		MaxPromptLength:   cfg.Generation.MaxPromptLength,
	}, popts...)

	a.buildHealth()
	return a, nil
}

func openStorage(ctx context.Context, cfg config.EvidenceConfig) (evidence.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		s, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite storage: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := storage.OpenPostgres(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported evidence backend: %s", cfg.Backend)
	}
}

func (a *app) buildSessions(ctx context.Context) error {
	cfg := a.cfg.Session
	switch cfg.Backend {
	case "redis":
		rs := session.NewRedisStore(session.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.TTL,
		})
		a.closers = append(a.closers, rs)
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach session store: %w", err)
		}
		a.sessions = rs
	default:
		ms := session.NewMemoryStore(cfg.TTL)
		a.closers = append(a.closers, ms)
		a.sessions = ms
	}
	return nil
}

func (a *app) buildClassifier() (moderation.Classifier, error) {
	cfg := a.cfg.Moderation
	var next moderation.Classifier
	switch cfg.Provider {
	case "http":
		hc, err := moderation.NewHTTPClassifier(moderation.HTTPConfig{
			Endpoint:          cfg.HTTP.Endpoint,
			APIKey:            cfg.HTTP.APIKey,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
			Burst:             cfg.HTTP.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create moderation client: %w", err)
		}
		next = hc
	default:
		next = moderation.NewKeywordClassifier(nil)
	}
	return moderation.NewGuard(next, cfg.Timeout), nil
}

func (a *app) buildGenerator(ctx context.Context) (generation.Generator, error) {
	cfg := a.cfg.Generation
	switch cfg.Provider {
	case "gemini":
		g, err := generation.NewGeminiGenerator(ctx, generation.GeminiConfig{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			Temperature:     cfg.Gemini.Temperature,
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
			SystemPrompt:    cfg.Gemini.SystemPrompt,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g)
		return g, nil
	default:
		return generation.NewStaticGenerator(cfg.Static.Fallback, cfg.Static.Responses), nil
	}
}

func sinkConfig(c config.SinkConfig) export.SinkConfig {
	return export.SinkConfig{
		Type:      export.SinkType(c.Type),
		Directory: c.Directory,
		Bucket:    c.Bucket,
		Prefix:    c.Prefix,
		Region:    c.Region,
		Endpoint:  c.Endpoint,
	}
}

func (a *app) buildExports(ctx context.Context) error {
	ev := a.cfg.Evidence

	sink, err := export.NewSink(ctx, sinkConfig(ev.Export.Sink))
	if err != nil {
		return fmt.Errorf("failed to create export sink: %w", err)
	}
	a.closeIfCloser(sink)
	a.exports = export.NewService(a.storage, sink)

	var archive export.Sink
	if ev.Retention.ArchiveBeforeDelete {
		if archive, err = export.NewSink(ctx, sinkConfig(ev.Retention.Archive)); err != nil {
			return fmt.Errorf("failed to create archive sink: %w", err)
		}
		a.closeIfCloser(archive)
	}
	a.pruner = retention.NewPruner(a.storage, archive, &retention.Config{
		PruneSchedule:       ev.Retention.PruneSchedule,
		ArchiveBeforeDelete: ev.Retention.ArchiveBeforeDelete,
	})
	return nil
}

// buildReview fans flags out to the in-process queue served by the review
// API and to the configured external emitter.
func (a *app) buildReview(ctx context.Context) (review.Emitter, error) {
	cfg := a.cfg.Review
	a.queue = review.NewMemoryQueue(cfg.QueueCapacity)

	switch cfg.Emitter {
	case "pubsub":
		var opts []option.ClientOption
		if cfg.PubSub.Endpoint != "" {
			opts = append(opts,
				option.WithEndpoint(cfg.PubSub.Endpoint),
				option.WithoutAuthentication(),
				option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		ps, err := review.NewPubSubEmitter(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ps)
		return review.NewMultiEmitter(a.queue, ps), nil
	default:
		return review.NewMultiEmitter(a.queue, review.NewLogEmitter()), nil
	}
}

func (a *app) buildHealth() {
	a.health = health.New(a.cfg.Telemetry.Health.CheckTimeout)

	a.health.RegisterCheck("audit_store", func(ctx context.Context) error {
		_, err := a.storage.Count(ctx, &evidence.Query{Limit: 1})
		return err
	})
	if rs, ok := a.sessions.(*session.RedisStore); ok {
		a.health.RegisterCheck("session_store", rs.Ping)
	}
	a.health.RegisterOptionalCheck("knowledge_pack", func(ctx context.Context) error {
		if a.knowledge.Current() == nil {
			return errors.New("no knowledge pack loaded")
		}
		return nil
	})
	a.health.RegisterOptionalCheck("recorder", func(ctx context.Context) error {
		if failed := a.recorder.Failed(); failed > 0 {
			return fmt.Errorf("%d audit writes failed", failed)
		}
		return nil
	})
}

func (a *app) closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

// close releases every component in reverse order and logs failures.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("Failed to close component", "error", err)
		}
	}
	a.closers = nil
}
