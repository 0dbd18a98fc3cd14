// Package app builds the object graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/walletchat/internal/api"
	"github.com/nfrund/walletchat/internal/config"
	"github.com/nfrund/walletchat/internal/history"
	"github.com/nfrund/walletchat/internal/identity"
	"github.com/nfrund/walletchat/internal/pubsub"
	"github.com/nfrund/walletchat/internal/ratelimit"
	"github.com/nfrund/walletchat/internal/rooms"
	"github.com/nfrund/walletchat/internal/session"
	"github.com/nfrund/walletchat/internal/storage"
	"github.com/nfrund/walletchat/internal/transport"
)

// Version is reported by the CLI and recorded on traces.
var Version = "0.1.0"

// App is the wired client core.
type App struct {
	Config     *config.Config
	Controller *session.Controller
	API        *api.Client
	Bus        *pubsub.WatermillBridge

	injector do.Injector
	closers  []func(ctx context.Context) error
}

// Option is a function that configures how New builds the graph.
type Option func(i do.Injector)

// WithStore replaces the configured storage backend.
func WithStore(s storage.Store) Option {
	return func(i do.Injector) { do.OverrideValue[storage.Store](i, s) }
}

// WithDialer replaces the configured transport dialer.
func WithDialer(d transport.Dialer) Option {
	return func(i do.Injector) { do.OverrideValue[transport.Dialer](i, d) }
}

// WithResolver replaces the base URL resolver derived from the config.
func WithResolver(r config.Resolver) Option {
	return func(i do.Injector) { do.OverrideValue[config.Resolver](i, r) }
}

// New builds the application graph. Call Start to load persisted state and
// Close to release it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.Provide(injector, provideStore)
	do.Provide(injector, provideResolver)
	do.Provide(injector, provideDialer)
	do.Provide(injector, provideTracer(ctx))
	do.Provide(injector, provideBus)
	do.Provide(injector, provideManager)
	do.Provide(injector, provideAPI)
	do.Provide(injector, provideDependencies)
	do.Provide(injector, provideController)
	for _, opt := range opts {
		opt(injector)
	}

	a := &App{Config: cfg, injector: injector}

	store, err := do.Invoke[storage.Store](injector)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	tracing, err := do.Invoke[*tracing](injector)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.closers = append(a.closers, tracing.shutdown)

	if a.Controller, err = do.Invoke[*session.Controller](injector); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.API = do.MustInvoke[*api.Client](injector)
	a.Bus = do.MustInvoke[*pubsub.WatermillBridge](injector)
	a.closers = append(a.closers,
		func(context.Context) error { return a.Bus.Close() },
		func(context.Context) error { a.Controller.Close(); return nil },
	)
	return a, nil
}

// Start loads the persisted rooms and identity.
func (a *App) Start(ctx context.Context) error {
	return a.Controller.Start(ctx)
}

// Close tears down the session, the event bus and the store, in that order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func provideStore(i do.Injector) (storage.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	switch cfg.Storage {
	case config.StorageBadger:
		return storage.OpenBadger(filepath.Join(cfg.DataDir, "badger"), slog.Default().With("component", "badger"))
	default:
		return storage.NewDiskStore(cfg.DataDir)
	}
}

func provideResolver(i do.Injector) (config.Resolver, error) {
	return do.MustInvoke[*config.Config](i).Resolver(), nil
}

func provideDialer(i do.Injector) (transport.Dialer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.TransportDriver == config.DriverGorilla {
		return transport.GorillaDialer{}, nil
	}
	return transport.CoderDialer{}, nil
}

type tracing struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

func provideTracer(ctx context.Context) do.Provider[*tracing] {
	return func(i do.Injector) (*tracing, error) {
		cfg := do.MustInvoke[*config.Config](i)
		tracer, shutdown, err := pubsub.SetupOTel(ctx, pubsub.TracingConfig{
			Enabled:     cfg.TracingEnabled,
			ServiceName: cfg.TracingServiceName,
			ZipkinURL:   cfg.TracingZipkinURL,
			Version:     Version,
		})
		if err != nil {
			return nil, err
		}
		return &tracing{tracer: tracer, shutdown: shutdown}, nil
	}
}

func provideBus(i do.Injector) (*pubsub.WatermillBridge, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if !cfg.TracingEnabled {
		return pubsub.NewWatermillBridge(), nil
	}
	t := do.MustInvoke[*tracing](i)
	return pubsub.NewWatermillBridge(pubsub.WithTracer(t.tracer)), nil
}

func provideManager(i do.Injector) (*transport.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return transport.NewManager(
		do.MustInvoke[transport.Dialer](i),
		do.MustInvoke[config.Resolver](i),
		transport.WithConnectTimeout(cfg.ConnectTimeout),
		transport.WithRetry(cfg.ConnectRetries, cfg.RetryBackoff),
		transport.WithWriteTimeout(cfg.WriteTimeout),
	), nil
}

func provideAPI(i do.Injector) (*api.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return api.NewClient(do.MustInvoke[config.Resolver](i), cfg.HTTPTimeout), nil
}

func provideDependencies(i do.Injector) (Dependencies, error) {
	cfg := do.MustInvoke[*config.Config](i)
	store := do.MustInvoke[storage.Store](i)
	return Dependencies{
		Rooms:     rooms.NewRegistry(store),
		History:   history.NewStore(store, history.WithRetention(cfg.HistoryRetention)),
		Identity:  identity.NewStore(store),
		Limiter:   ratelimit.New(cfg.SendInterval),
		Transport: do.MustInvoke[*transport.Manager](i),
		API:       do.MustInvoke[*api.Client](i),
		Bus:       do.MustInvoke[*pubsub.WatermillBridge](i),
	}, nil
}

func provideController(i do.Injector) (*session.Controller, error) {
	return session.NewController(sessionDeps(do.MustInvoke[Dependencies](i))), nil
}
