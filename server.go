package lws

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// listenConfig collects the orchestration collaborators that are not part of
// the ServerOptions record: logger, registry, the final handler, and any
// observers that must be attached before the first lifecycle event.
type listenConfig struct {
	ctx       context.Context
	logger    Logger
	registry  *ModuleRegistry
	handler   http.Handler
	observers []observerBinding
}

type observerBinding struct {
	observer   Observer
	eventTypes []string
}

// ListenOption customizes one Listen call.
type ListenOption func(*listenConfig)

// WithContext sets the context governing the server's background work.
func WithContext(ctx context.Context) ListenOption {
	return func(c *listenConfig) { c.ctx = ctx }
}

// WithLogger sets the structured logger used by every component.
func WithLogger(logger Logger) ListenOption {
	return func(c *listenConfig) { c.logger = logger }
}

// WithRegistry replaces the default module registry for factory and
// middleware resolution.
func WithRegistry(registry *ModuleRegistry) ListenOption {
	return func(c *listenConfig) { c.registry = registry }
}

// WithHandler mounts a terminal handler behind the middleware chain. Without
// one, requests that no middleware short-circuits get a 404.
func WithHandler(handler http.Handler) ListenOption {
	return func(c *listenConfig) { c.handler = handler }
}

// WithObserver subscribes an observer to the verbose event stream before the
// server starts listening, so it observes every lifecycle event from the
// first one on.
func WithObserver(observer Observer, eventTypes ...string) ListenOption {
	return func(c *listenConfig) {
		c.observers = append(c.observers, observerBinding{observer: observer, eventTypes: eventTypes})
	}
}

// Listen bootstraps and starts one server instance: it validates the
// options, composes the transport factory, creates the handle, applies
// post-creation tuning, wires the event aggregator (before listening, so no
// lifecycle event is lost), resolves the middleware stack, hands the ordered
// chain to the chi router, binds the listener, and starts the recurring
// memory-stats reporter.
//
// Any validation failure from factory selection or stack assembly is
// returned synchronously and aborts startup; no partial server is left
// listening and server.listening is never emitted.
func Listen(opts *ServerOptions, listenOpts ...ListenOption) (*ServerHandle, error) {
	cfg := &listenConfig{
		ctx:      context.Background(),
		logger:   noopLogger{},
		registry: DefaultRegistry(),
	}
	for _, opt := range listenOpts {
		opt(cfg)
	}

	factory, err := SelectFactory(opts, cfg.registry)
	if err != nil {
		return nil, err
	}

	handle, err := factory.Create(opts)
	if err != nil {
		return nil, err
	}
	handle.SetLogger(cfg.logger)

	if opts.MaxConnections > 0 {
		handle.SetMaxConnections(opts.MaxConnections)
	}
	if opts.KeepAliveTimeout > 0 {
		handle.SetKeepAliveTimeout(opts.KeepAliveTimeout)
	}

	aggregator := NewAggregator(cfg.logger)
	for _, binding := range cfg.observers {
		if err := aggregator.RegisterObserver(binding.observer, binding.eventTypes...); err != nil {
			return nil, err
		}
	}
	if err := aggregator.Instrument(handle); err != nil {
		return nil, err
	}

	stack, err := NewStack(opts.Stack, opts, cfg.registry)
	if err != nil {
		return nil, err
	}
	cfg.logger.Debug("Middleware stack assembled", "count", stack.Len())

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(aggregator.requestMiddleware())
	router.Use(stack.Handlers(opts)...)
	if cfg.handler != nil {
		router.Mount("/", cfg.handler)
	} else {
		router.NotFound(http.NotFound)
	}
	handle.SetHandler(router)

	if err := handle.Listen(cfg.ctx); err != nil {
		return nil, err
	}

	reporter := newMemoryReporter(aggregator, cfg.logger)
	if err := reporter.start(); err != nil {
		cfg.logger.Warn("Memory stats reporter unavailable", "error", err)
	} else {
		handle.mem = reporter
	}

	return handle, nil
}
