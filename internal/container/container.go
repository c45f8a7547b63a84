// Package container wires the tally services from a config.Config using go.uber.org/dig.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.uber.org/dig"

	"github.com/aretw0/tally"
	"github.com/aretw0/tally/internal/config"
	"github.com/aretw0/tally/internal/logging"
	"github.com/aretw0/tally/pkg/adapters/memory"
	"github.com/aretw0/tally/pkg/adapters/openai"
	"github.com/aretw0/tally/pkg/adapters/redis"
	"github.com/aretw0/tally/pkg/adapters/scripted"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/observability"
	"github.com/aretw0/tally/pkg/persistence/middleware"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/session"
	backend "github.com/redis/go-redis/v9"
)

// pingTimeout bounds the Redis reachability check done at start-up.
const pingTimeout = 5 * time.Second

// Container holds the resolved service singletons.
// Callers use the typed getters and never import dig directly.
type Container struct {
	cfg       *config.Config
	logger    *slog.Logger
	assistant *tally.Assistant
	records   ports.RecordStore
	sessions  *session.Manager
	metrics   *observability.Metrics
	conn      redisConn
}

func (c *Container) Config() *config.Config          { return c.cfg }
func (c *Container) Logger() *slog.Logger            { return c.logger }
func (c *Container) Assistant() *tally.Assistant     { return c.assistant }
func (c *Container) Records() ports.RecordStore      { return c.records }
func (c *Container) Sessions() *session.Manager      { return c.sessions }
func (c *Container) Metrics() *observability.Metrics { return c.metrics }

// Close releases the Redis connection, if any.
func (c *Container) Close() error {
	if c.conn.client == nil {
		return nil
	}
	return c.conn.client.Close()
}

// redisConn is empty when the store driver is memory.
type redisConn struct{ client *backend.Client }

// Option adjusts how the container is built.
type Option func(*settings)

type settings struct {
	logger  *slog.Logger
	planner ports.Planner
}

// WithLogger replaces the logger built from the log section.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithPlanner replaces the planner built from the planner section.
func WithPlanner(p ports.Planner) Option {
	return func(s *settings) { s.planner = p }
}

// New validates cfg, then builds and wires every service.
func New(cfg *config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var st settings
	for _, opt := range opts {
		opt(&st)
	}

	d := dig.New()
	providers := []any{
		func() *config.Config { return cfg },
		func(cfg *config.Config) (*slog.Logger, error) {
			if st.logger != nil {
				return st.logger, nil
			}
			return newLogger(cfg)
		},
		newRedisConn,
		newRecords,
		newSessions,
		func(cfg *config.Config, logger *slog.Logger) (ports.Planner, error) {
			if st.planner != nil {
				return st.planner, nil
			}
			return newPlanner(cfg, logger)
		},
		observability.NewMetrics,
		newAssistant,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		logger *slog.Logger,
		conn redisConn,
		records ports.RecordStore,
		sessions *session.Manager,
		metrics *observability.Metrics,
		assistant *tally.Assistant,
	) {
		result = &Container{
			cfg:       cfg,
			logger:    logger,
			assistant: assistant,
			records:   records,
			sessions:  sessions,
			metrics:   metrics,
			conn:      conn,
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithOptions(logging.Options{Level: level, Format: cfg.Log.Format}), nil
}

func newRedisConn(cfg *config.Config, logger *slog.Logger) (redisConn, error) {
	if cfg.Store.Driver != config.DriverRedis {
		return redisConn{}, nil
	}
	client := redis.NewClient(cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB)
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return redisConn{}, fmt.Errorf("connect to redis at %s: %w", cfg.Store.Addr, err)
	}
	logger.Debug("redis connected", "address", cfg.Store.Addr, "db", cfg.Store.DB)
	return redisConn{client: client}, nil
}

func newRecords(cfg *config.Config, conn redisConn) ports.RecordStore {
	if conn.client == nil {
		return memory.NewRecords()
	}
	return redis.NewRecords(conn.client, redis.WithRecordsPrefix(cfg.Store.Prefix))
}

// newSessions returns nil when transcripts are not persisted.
func newSessions(cfg *config.Config, conn redisConn, logger *slog.Logger) (*session.Manager, error) {
	if !cfg.Transcripts.Persist {
		return nil, nil
	}

	var (
		store ports.TranscriptStore
		opts  = []session.Option{session.WithLogger(logger)}
	)
	if conn.client == nil {
		store = memory.NewStore()
	} else {
		store = redis.NewFromClient(conn.client,
			redis.WithPrefix(cfg.Store.Prefix),
			redis.WithTTL(cfg.Store.TTL.Std()),
		)
		opts = append(opts, session.WithLocker(redis.NewLocker(conn.client, cfg.Store.Prefix)))
	}

	mws, err := transcriptMiddleware(cfg.Transcripts)
	if err != nil {
		return nil, err
	}
	return session.NewManager(middleware.Chain(store, mws...), opts...), nil
}

// transcriptMiddleware returns the redaction layer outside the encryption layer.
func transcriptMiddleware(tc config.TranscriptsConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(tc.Redact) > 0 {
		mw, err := middleware.NewPIIMiddleware(tc.Redact)
		if err != nil {
			return nil, fmt.Errorf("transcripts.redact: %w", err)
		}
		mws = append(mws, mw)
	}
	if tc.EncryptionKey != "" {
		active, err := middleware.ParseKey(tc.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("transcripts.encryption_key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for _, k := range tc.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return nil, fmt.Errorf("transcripts.fallback_keys: %w", err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return mws, nil
}

func newPlanner(cfg *config.Config, logger *slog.Logger) (ports.Planner, error) {
	pc := cfg.Planner
	switch pc.Provider {
	case config.ProviderScripted:
		f, err := os.Open(pc.Script)
		if err != nil {
			return nil, fmt.Errorf("open planner script: %w", err)
		}
		defer f.Close()
		return scripted.Load(f)
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithAPIKey(pc.APIKey),
			openai.WithMaxTokens(pc.MaxTokens),
			openai.WithTemperature(pc.Temperature),
			openai.WithLogger(logger),
		}
		if pc.SystemPrompt != "" {
			opts = append(opts, openai.WithSystemPrompt(pc.SystemPrompt))
		}
		return openai.New(pc.URL, pc.Model, opts...)
	default:
		return nil, errors.New("unknown planner provider " + pc.Provider)
	}
}

func newAssistant(
	cfg *config.Config,
	planner ports.Planner,
	records ports.RecordStore,
	sessions *session.Manager,
	metrics *observability.Metrics,
	logger *slog.Logger,
) (*tally.Assistant, error) {
	ec := cfg.Engine
	opts := []tally.Option{
		tally.WithLogger(logger),
		tally.WithLifecycleHooks(domain.MergeHooks(metrics.Hooks(), observability.AuditHooks(logger))),
		tally.WithStepBudget(ec.StepBudget),
		tally.WithPlannerTimeout(ec.PlannerTimeout.Std()),
		tally.WithPlannerRetries(ec.PlannerRetries),
		tally.WithRetryBackoff(ec.RetryBackoff.Std()),
		tally.WithActionTimeout(ec.ActionTimeout.Std()),
		tally.WithProgress(ec.Progress),
		tally.WithChunkSize(ec.ChunkSize),
	}
	if sessions != nil {
		opts = append(opts, tally.WithSessions(sessions))
	}
	return tally.New(planner, records, opts...)
}
