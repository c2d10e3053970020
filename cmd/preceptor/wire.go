package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/preceptor"
	"github.com/aretw0/preceptor/internal/config"
	"github.com/aretw0/preceptor/internal/logging"
	"github.com/aretw0/preceptor/pkg/adapters/file"
	"github.com/aretw0/preceptor/pkg/adapters/gcs"
	"github.com/aretw0/preceptor/pkg/adapters/memory"
	"github.com/aretw0/preceptor/pkg/adapters/openai"
	"github.com/aretw0/preceptor/pkg/adapters/redis"
	"github.com/aretw0/preceptor/pkg/adapters/vertex"
	"github.com/aretw0/preceptor/pkg/domain"
	"github.com/aretw0/preceptor/pkg/observability"
	"github.com/aretw0/preceptor/pkg/persistence/middleware"
	"github.com/aretw0/preceptor/pkg/ports"
	"github.com/aretw0/preceptor/pkg/session"
)

const defaultVertexLocation = "us-central1"

// app holds everything a command needs, built once from the configuration.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	hooks   domain.LifecycleHooks

	gateway   ports.Gateway
	engine    *preceptor.Engine
	store     ports.StateStore
	artifacts ports.ArtifactStore
	claimer   ports.Claimer
	locker    ports.DistributedLocker
	finalizer *session.Finalizer

	closers []io.Closer
}

func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(w, level, cfg.Log.JSON), nil
}

// newApp wires gateway, stores, engine and finalizer. The caller must Close it.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
	}
	a.hooks = a.metrics.Hooks().Merge(observability.LogHooks(logger))

	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	gw, err := a.buildGateway(ctx)
	if err != nil {
		return err
	}
	a.gateway = withTimeout(gw, a.cfg.Gateway.Timeout)

	a.engine, err = preceptor.New(a.gateway,
		preceptor.WithLogger(a.logger),
		preceptor.WithLifecycleHooks(a.hooks),
		preceptor.WithSystemPrompt(a.cfg.Engine.SystemPrompt),
		preceptor.WithMaxTokens(a.cfg.Engine.MaxTokens),
		preceptor.WithPhaseRecovery(a.cfg.Engine.RecoverUnknownPhase),
	)
	if err != nil {
		return err
	}

	var client backend.UniversalClient
	if a.cfg.Store.Backend == config.BackendRedis || a.cfg.Artifacts.Backend == config.BackendRedis {
		client = backend.NewClient(&backend.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, client)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s: %w", a.cfg.Redis.Addr, err)
		}
	}

	switch a.cfg.Store.Backend {
	case config.BackendFile:
		a.store = file.New(a.cfg.Store.Dir)
	case config.BackendRedis:
		a.store = redis.NewFromClient(client, redis.WithPrefix(a.cfg.Redis.Prefix), redis.WithTTL(a.cfg.Redis.TTL))
	default:
		a.store = memory.NewStore()
	}
	if a.store, err = a.secureStore(a.store); err != nil {
		return err
	}

	switch a.cfg.Artifacts.Backend {
	case config.BackendMemory:
		a.artifacts = memory.NewArtifactStore()
	case config.BackendRedis:
		a.artifacts = redis.NewArtifactStore(client, a.cfg.Redis.Prefix, a.cfg.Redis.TTL)
	case config.BackendGCS:
		store, err := gcs.NewArtifactStore(ctx, a.cfg.Artifacts.Bucket, a.cfg.Artifacts.Prefix)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store)
		a.artifacts = store
	default:
		a.artifacts = file.NewArtifactStore(a.cfg.Artifacts.Dir)
	}

	// Claims and locks must be shared when sessions are shared across replicas.
	if client != nil {
		a.claimer = redis.NewClaimer(client, a.cfg.Redis.Prefix)
		a.locker = redis.NewLocker(client, a.cfg.Redis.Prefix)
	} else {
		a.claimer = memory.NewClaimer()
	}

	a.finalizer = session.NewFinalizer(a.engine.Generator(), a.artifacts, a.claimer,
		session.WithFinalizerLogger(a.logger),
		session.WithFinalizerHooks(a.hooks),
	)
	return nil
}

// secureStore masks configured PII fields, then encrypts, before the backend sees a state.
func (a *app) secureStore(store ports.StateStore) (ports.StateStore, error) {
	var mws []middleware.Middleware
	if len(a.cfg.Store.PIIFields) > 0 {
		pii, err := middleware.NewPIIMiddleware(a.cfg.Store.PIIFields)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	active, fallback, err := a.cfg.Store.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}

func (a *app) buildGateway(ctx context.Context) (ports.Gateway, error) {
	g := a.cfg.Gateway
	switch g.Backend {
	case config.GatewayOpenAI:
		opts := []openai.Option{openai.WithLogger(a.logger)}
		if g.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(g.BaseURL))
		}
		if g.Model != "" {
			opts = append(opts, openai.WithModel(g.Model))
		}
		return openai.New(g.APIKey, opts...), nil
	case config.GatewayVertex, config.GatewayVertexGemini:
		vc := vertex.Config{
			Project:     g.Project,
			Location:    g.Location,
			EndpointID:  g.EndpointID,
			Model:       g.Model,
			APIEndpoint: g.APIEndpoint,
		}
		if vc.Location == "" {
			vc.Location = defaultVertexLocation
		}
		if g.Backend == config.GatewayVertex {
			return vertex.NewEndpointGateway(ctx, vc, a.logger)
		}
		return vertex.NewGeminiGateway(ctx, vc, a.logger)
	case config.GatewayScripted:
		return memory.NewScriptedGateway(g.Script...), nil
	case config.GatewayEcho:
		return memory.NewEchoGateway(), nil
	}
	return nil, fmt.Errorf("unknown gateway backend %q", g.Backend)
}

// withTimeout bounds every model call by d.
func withTimeout(gw ports.Gateway, d time.Duration) ports.Gateway {
	if d <= 0 {
		return gw
	}
	return ports.GatewayFunc(func(ctx context.Context, req ports.CompletionRequest) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return gw.Complete(ctx, req)
	})
}

// sessionManager builds a manager over the configured store.
func (a *app) sessionManager() *session.Manager {
	opts := []session.Option{session.WithLogger(a.logger)}
	if a.locker != nil {
		opts = append(opts, session.WithLocker(a.locker))
	}
	return session.NewManager(a.store, opts...)
}

// Close waits for detached artifact generation, then releases clients.
func (a *app) Close() error {
	if a.finalizer != nil {
		a.finalizer.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
