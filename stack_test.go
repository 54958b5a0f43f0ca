package lws

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// taggingMiddleware appends its tag to a shared trace when a request passes
// through, so tests can observe execution order.
type taggingMiddleware struct {
	tag   string
	trace *[]string
}

func (m *taggingMiddleware) Handler(_ *ServerOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*m.trace = append(*m.trace, m.tag)
			next.ServeHTTP(w, r)
		})
	}
}

func runChain(t *testing.T, handlers []func(http.Handler) http.Handler) {
	t.Helper()
	var final http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	for i := len(handlers) - 1; i >= 0; i-- {
		final = handlers[i](final)
	}
	final.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestStackOrderPreserved(t *testing.T) {
	var trace []string
	opts := &ServerOptions{}
	require.NoError(t, opts.Validate())

	stack, err := NewStack([]MiddlewareSpec{
		&taggingMiddleware{tag: "A", trace: &trace},
		&taggingMiddleware{tag: "B", trace: &trace},
		&taggingMiddleware{tag: "C", trace: &trace},
	}, opts, nil)
	require.NoError(t, err)
	require.Equal(t, 3, stack.Len())

	runChain(t, stack.Handlers(opts))
	// First in stack is first to see the request.
	assert.Equal(t, []string{"A", "B", "C"}, trace)
}

func TestStackSpecForms(t *testing.T) {
	var trace []string
	opts := &ServerOptions{ModulePrefix: "lws-"}

	registry := NewModuleRegistry()
	require.NoError(t, registry.Register("lws-tagged", MiddlewareConstructor(func(_ *ServerOptions) (Middleware, error) {
		return &taggingMiddleware{tag: "registry", trace: &trace}, nil
	})))

	constructor := func(_ *ServerOptions) (Middleware, error) {
		return &taggingMiddleware{tag: "constructor", trace: &trace}, nil
	}
	bare := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trace = append(trace, "bare")
			next.ServeHTTP(w, r)
		})
	}

	stack, err := NewStack([]MiddlewareSpec{
		&taggingMiddleware{tag: "value", trace: &trace},
		constructor,
		bare,
		"tagged",
	}, opts, registry)
	require.NoError(t, err)
	require.Equal(t, 4, stack.Len())

	runChain(t, stack.Handlers(opts))
	assert.Equal(t, []string{"value", "constructor", "bare", "registry"}, trace)
}

func TestStackPassThroughIdempotent(t *testing.T) {
	var trace []string
	opts := &ServerOptions{}

	inner, err := NewStack([]MiddlewareSpec{
		&taggingMiddleware{tag: "A", trace: &trace},
		&taggingMiddleware{tag: "B", trace: &trace},
	}, opts, nil)
	require.NoError(t, err)

	outer, err := NewStack([]MiddlewareSpec{inner}, opts, nil)
	require.NoError(t, err)

	assert.Equal(t, inner.Instances(), outer.Instances())
}

func TestStackFailFast(t *testing.T) {
	opts := &ServerOptions{ModulePrefix: "lws-"}
	laterConstructed := false

	stack, err := NewStack([]MiddlewareSpec{
		"no-such-middleware",
		MiddlewareConstructor(func(_ *ServerOptions) (Middleware, error) {
			laterConstructed = true
			return MiddlewareFunc(func(next http.Handler) http.Handler { return next }), nil
		}),
	}, opts, NewModuleRegistry())

	assert.Nil(t, stack, "no partial stack may be observable")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMiddlewareResolution)
	assert.Contains(t, err.Error(), "no-such-middleware")
	assert.False(t, laterConstructed, "later specs must not be produced after a failure")
}

func TestStackUnsupportedSpec(t *testing.T) {
	_, err := NewStack([]MiddlewareSpec{42}, &ServerOptions{}, nil)
	assert.ErrorIs(t, err, ErrMiddlewareInvalidSpec)
}

func TestStackRegistryModuleWrongType(t *testing.T) {
	registry := NewModuleRegistry()
	require.NoError(t, registry.Register("lws-weird", 99))

	_, err := NewStack([]MiddlewareSpec{"weird"}, &ServerOptions{ModulePrefix: "lws-"}, registry)
	assert.ErrorIs(t, err, ErrMiddlewareResolution)
}
