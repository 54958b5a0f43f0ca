package lws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/net/netutil"
)

// ServerHandle represents the live listening object produced by a
// ServerFactory. It owns the underlying http.Server, the TLS material
// selected by the factory chain, and a Subject capability through which its
// lifecycle transitions (listening, close) are observable. The event
// aggregator attaches to the handle before Listen so no lifecycle event is
// lost; the orchestrator tunes connection limits and starts listening.
type ServerHandle struct {
	opts     *ServerOptions
	server   *http.Server
	handler  http.Handler
	emitter  *Aggregator
	logger   Logger
	reloader *certReloader

	// transport shape, fixed by the selecting factory
	tlsConfig *tls.Config
	secure    bool
	useHTTP2  bool

	// post-creation tunables
	maxConnections   int
	keepAliveTimeout time.Duration

	// set by Aggregator.Instrument before Listen
	monitor *Aggregator

	mu       sync.Mutex
	listener net.Listener
	port     int
	started  bool
	cancel   context.CancelFunc
	mem      *memoryReporter
}

var _ Subject = (*ServerHandle)(nil)

// newServerHandle creates the bare handle shared by every factory variant.
func newServerHandle(opts *ServerOptions) *ServerHandle {
	return &ServerHandle{
		opts:             opts,
		server:           &http.Server{ReadHeaderTimeout: 30 * time.Second},
		emitter:          NewAggregator(nil),
		logger:           noopLogger{},
		maxConnections:   opts.MaxConnections,
		keepAliveTimeout: opts.KeepAliveTimeout,
	}
}

// SetLogger replaces the handle's logger. Must be called before Listen.
func (h *ServerHandle) SetLogger(logger Logger) {
	if logger != nil {
		h.logger = logger
		h.emitter.logger = logger
	}
}

// SetMaxConnections overrides the concurrent connection cap post-creation.
func (h *ServerHandle) SetMaxConnections(n int) {
	h.maxConnections = n
}

// SetKeepAliveTimeout overrides how long idle keep-alive connections are
// held open post-creation.
func (h *ServerHandle) SetKeepAliveTimeout(d time.Duration) {
	h.keepAliveTimeout = d
}

// MaxConnections returns the effective connection cap; zero is unlimited.
func (h *ServerHandle) MaxConnections() int { return h.maxConnections }

// KeepAliveTimeout returns the effective idle keep-alive timeout.
func (h *ServerHandle) KeepAliveTimeout() time.Duration { return h.keepAliveTimeout }

// TLSEnabled reports whether the handle exposes a TLS context, which decides
// the scheme of the reported endpoint URLs.
func (h *ServerHandle) TLSEnabled() bool { return h.secure }

// SetHandler installs the request handler assembled by the orchestrator.
// For cleartext HTTP/2 the handler is wrapped for h2c upgrade here.
func (h *ServerHandle) SetHandler(handler http.Handler) {
	if h.useHTTP2 && h.tlsConfig == nil {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}
	h.handler = handler
}

// Subject capability: the handle's own verbose events (server.listening,
// server.close) are delivered through an embedded emitter so the handle can
// be a propagation source for any aggregator.

// RegisterObserver subscribes an observer to the handle's lifecycle events.
func (h *ServerHandle) RegisterObserver(observer Observer, eventTypes ...string) error {
	return h.emitter.RegisterObserver(observer, eventTypes...)
}

// UnregisterObserver removes an observer. Idempotent.
func (h *ServerHandle) UnregisterObserver(observer Observer) error {
	return h.emitter.UnregisterObserver(observer)
}

// NotifyObservers delivers an event to the handle's observers in order.
func (h *ServerHandle) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	return h.emitter.NotifyObservers(ctx, event)
}

// GetObservers returns the handle's registered observers.
func (h *ServerHandle) GetObservers() []ObserverInfo {
	return h.emitter.GetObservers()
}

// Listen binds the configured address and starts serving. The listening
// transition, carrying one human-readable endpoint URL per interface (or
// exactly one when a hostname is configured), is emitted after the bind
// succeeds and before the first connection is accepted.
func (h *ServerHandle) Listen(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return ErrServerStarted
	}
	if h.handler == nil {
		return ErrNoHandler
	}

	serveCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	addr := net.JoinHostPort(h.opts.Hostname, strconv.Itoa(h.opts.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		h.port = tcpAddr.Port
	} else {
		h.port = h.opts.Port
	}

	if h.maxConnections > 0 {
		listener = netutil.LimitListener(listener, h.maxConnections)
	}
	if h.monitor != nil {
		listener = newMonitoredListener(serveCtx, listener, h.monitor)
	}

	h.server.Handler = h.handler
	if h.keepAliveTimeout > 0 {
		h.server.IdleTimeout = h.keepAliveTimeout
	}

	if h.tlsConfig != nil {
		h.server.TLSConfig = h.tlsConfig
		if h.useHTTP2 {
			if err := http2.ConfigureServer(h.server, &http2.Server{}); err != nil {
				cancel()
				if closeErr := listener.Close(); closeErr != nil {
					h.logger.Warn("Failed to close listener", "error", closeErr)
				}
				return fmt.Errorf("configuring http2: %w", err)
			}
		}
		listener = tls.NewListener(listener, h.server.TLSConfig)
	}

	if h.reloader != nil {
		if err := h.reloader.watch(serveCtx, h.emitter, h.logger); err != nil {
			h.logger.Warn("Certificate watcher unavailable", "error", err)
		}
	}

	h.listener = listener
	h.started = true

	h.emitter.Emit(ctx, EventServerListening, h.listeningURLs())
	h.logger.Info("Server listening", "scheme", h.scheme(), "port", h.port, "hostname", h.opts.Hostname)

	go func() {
		serveErr := h.server.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			h.logger.Error("Server error", "error", serveErr)
		}
	}()

	return nil
}

// Close gracefully shuts the server down: no new connections are accepted,
// in-flight requests drain, background tasks (memory stats, certificate
// watcher) stop, and the close transition is emitted.
func (h *ServerHandle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return ErrServerNotStarted
	}

	if h.mem != nil {
		h.mem.stop()
	}
	if h.reloader != nil {
		if err := h.reloader.close(); err != nil {
			h.logger.Warn("Failed to close certificate watcher", "error", err)
		}
	}
	if h.cancel != nil {
		h.cancel()
	}

	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	h.started = false
	h.emitter.Emit(ctx, EventServerClose, nil)
	h.logger.Info("Server stopped")
	return nil
}

// Port returns the bound port. Useful when the options requested port 0.
func (h *ServerHandle) Port() int {
	return h.port
}

// Addr returns the bound listener address, or nil before Listen.
func (h *ServerHandle) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

func (h *ServerHandle) scheme() string {
	if h.secure {
		return "https"
	}
	return "http"
}

// listeningURLs derives the human-readable endpoint URLs for the listening
// event from the handle's bound state.
func (h *ServerHandle) listeningURLs() []string {
	if h.opts.Hostname != "" {
		return endpointURLs(h.opts.Hostname, h.port, h.secure, nil)
	}
	return endpointURLs("", h.port, h.secure, interfaceAddresses())
}

// endpointURLs formats scheme://host:port strings. With a hostname set the
// result is exactly one URL; otherwise one URL per interface address, in the
// order given.
func endpointURLs(hostname string, port int, secure bool, addrs []string) []string {
	scheme := "http"
	if secure {
		scheme = "https"
	}

	if hostname != "" {
		return []string{fmt.Sprintf("%s://%s:%d", scheme, hostname, port)}
	}

	urls := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		urls = append(urls, fmt.Sprintf("%s://%s:%d", scheme, addr, port))
	}
	return urls
}

// interfaceAddresses lists the host's IPv4 addresses in interface order.
func interfaceAddresses() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return []string{"127.0.0.1"}
	}

	var out []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			out = append(out, v4.String())
		}
	}
	if len(out) == 0 {
		out = []string{"127.0.0.1"}
	}
	return out
}
