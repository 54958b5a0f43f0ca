package lws

import (
	"fmt"
	"net/http"
)

// MiddlewareSpec is one entry of the stack option. Supported concrete types:
//
//   - Middleware: used as-is
//   - MiddlewareConstructor: called with the server options
//   - func(http.Handler) http.Handler: wrapped as an anonymous middleware
//   - string: resolved through the module registry using the configured
//     plugin prefix and module dirs
//   - *Stack: an already-assembled stack, spliced in unchanged
type MiddlewareSpec = any

// Middleware is the contract every resolved stack entry must satisfy: produce
// a request-handling function given the final server options. The returned
// function is a standard chi-compatible middleware.
type Middleware interface {
	Handler(opts *ServerOptions) func(http.Handler) http.Handler
}

// MiddlewareConstructor builds a Middleware from the server options. Registry
// modules and inline specs may both take this form.
type MiddlewareConstructor func(opts *ServerOptions) (Middleware, error)

// MiddlewareFunc adapts a bare chi-style middleware into the Middleware
// contract, ignoring the options.
type MiddlewareFunc func(http.Handler) http.Handler

// Handler implements Middleware.
func (f MiddlewareFunc) Handler(_ *ServerOptions) func(http.Handler) http.Handler {
	return f
}

// MiddlewareInstance pairs a resolved Middleware with the spec it came from.
type MiddlewareInstance struct {
	Middleware Middleware
	Spec       MiddlewareSpec
}

// Stack is an ordered sequence of resolved middleware. Order is the contract:
// the first entry is the first to see a request and the first allowed to
// short-circuit it.
type Stack struct {
	instances []MiddlewareInstance
}

// NewStack resolves an ordered list of middleware specifications into a
// validated stack. Resolution is fail-fast: the first failure aborts the
// whole assembly and no partial stack is returned. Passing specs that are
// themselves assembled stacks is idempotent; their instances are spliced in
// unchanged.
func NewStack(specs []MiddlewareSpec, opts *ServerOptions, registry *ModuleRegistry) (*Stack, error) {
	stack := &Stack{instances: make([]MiddlewareInstance, 0, len(specs))}

	for _, spec := range specs {
		switch s := spec.(type) {
		case *Stack:
			stack.instances = append(stack.instances, s.instances...)
		case Middleware:
			stack.instances = append(stack.instances, MiddlewareInstance{Middleware: s, Spec: spec})
		case MiddlewareConstructor:
			mw, err := s(opts)
			if err != nil {
				return nil, fmt.Errorf("%w: constructing %T: %w", ErrMiddlewareResolution, spec, err)
			}
			stack.instances = append(stack.instances, MiddlewareInstance{Middleware: mw, Spec: spec})
		case func(*ServerOptions) (Middleware, error):
			mw, err := s(opts)
			if err != nil {
				return nil, fmt.Errorf("%w: constructing %T: %w", ErrMiddlewareResolution, spec, err)
			}
			stack.instances = append(stack.instances, MiddlewareInstance{Middleware: mw, Spec: spec})
		case func(http.Handler) http.Handler:
			stack.instances = append(stack.instances, MiddlewareInstance{Middleware: MiddlewareFunc(s), Spec: spec})
		case string:
			mw, err := resolveMiddlewareModule(s, opts, registry)
			if err != nil {
				return nil, err
			}
			stack.instances = append(stack.instances, MiddlewareInstance{Middleware: mw, Spec: spec})
		default:
			return nil, fmt.Errorf("%w: %T", ErrMiddlewareInvalidSpec, spec)
		}
	}

	return stack, nil
}

// resolveMiddlewareModule resolves a string spec through the module registry
// and checks the loaded value against the middleware contract.
func resolveMiddlewareModule(name string, opts *ServerOptions, registry *ModuleRegistry) (Middleware, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}

	module, err := registry.Resolve(name, opts.ModulePrefix, opts.ModuleDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMiddlewareResolution, name, err)
	}

	switch m := module.(type) {
	case Middleware:
		return m, nil
	case MiddlewareConstructor:
		mw, err := m(opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrMiddlewareResolution, name, err)
		}
		return mw, nil
	case func(*ServerOptions) (Middleware, error):
		mw, err := m(opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrMiddlewareResolution, name, err)
		}
		return mw, nil
	case func(http.Handler) http.Handler:
		return MiddlewareFunc(m), nil
	default:
		return nil, fmt.Errorf("%w: %q resolved to %T, which is not a middleware", ErrMiddlewareResolution, name, module)
	}
}

// Len returns the number of middleware instances in the stack.
func (s *Stack) Len() int {
	return len(s.instances)
}

// Instances returns the resolved middleware in stack order.
func (s *Stack) Instances() []MiddlewareInstance {
	out := make([]MiddlewareInstance, len(s.instances))
	copy(out, s.instances)
	return out
}

// Handlers calls Handler on every instance, in the original order, and
// returns the ordered sequence of request-handling functions. The external
// request dispatcher registers them in exactly this order.
func (s *Stack) Handlers(opts *ServerOptions) []func(http.Handler) http.Handler {
	handlers := make([]func(http.Handler) http.Handler, 0, len(s.instances))
	for _, instance := range s.instances {
		handlers = append(handlers, instance.Middleware.Handler(opts))
	}
	return handlers
}
