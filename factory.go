package lws

import (
	"fmt"
)

// ServerFactory is the capability every transport variant implements: create
// a listening server handle from validated server options. Decorator
// variants wrap a previously constructed factory and may call through to it,
// so HTTPS, HTTP/2 and custom transports all reuse the same base wiring.
type ServerFactory interface {
	Create(opts *ServerOptions) (*ServerHandle, error)
}

// FactoryDecorator is the contract a user-supplied server module must
// satisfy: given the base factory, return the decorated factory. Modules
// registered under the Server option are type-asserted against this.
type FactoryDecorator = func(ServerFactory) ServerFactory

// SelectFactory runs the one-pass factory decision over the relevant subset
// of the server options and returns the composed factory. Exactly one
// decorator is ever active; the variants are mutually exclusive by
// construction of the decision, not by runtime checks afterwards.
//
// Priority: HTTPS when requested explicitly, or implied by TLS material
// without HTTP/2; then HTTP/2; then a user-supplied factory module; then the
// base plain-HTTP factory.
func SelectFactory(opts *ServerOptions, registry *ModuleRegistry) (ServerFactory, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	base := &BaseFactory{}

	switch {
	case opts.HTTPS || (!opts.HTTP2 && opts.secure()):
		return &HTTPSFactory{Inner: base}, nil
	case opts.HTTP2:
		return &HTTP2Factory{Inner: base}, nil
	case opts.Server != "":
		return selectUserFactory(opts, registry, base)
	default:
		return base, nil
	}
}

// selectUserFactory resolves the Server option through the module registry.
// Platform built-in transport names are rejected before resolution is even
// attempted, and the resolved module must conform to the FactoryDecorator
// contract.
func selectUserFactory(opts *ServerOptions, registry *ModuleRegistry, base ServerFactory) (ServerFactory, error) {
	if builtinServerNames[opts.Server] {
		return nil, fmt.Errorf("%w: %q names a built-in transport", ErrInvalidServerModule, opts.Server)
	}

	if registry == nil {
		registry = DefaultRegistry()
	}
	module, err := registry.Resolve(opts.Server, opts.ModulePrefix, opts.ModuleDir)
	if err != nil {
		return nil, err
	}

	decorate, ok := module.(FactoryDecorator)
	if !ok {
		return nil, fmt.Errorf("%w: %q resolved to %T, expected a factory decorator", ErrInvalidServerModule, opts.Server, module)
	}

	return decorate(base), nil
}

// BaseFactory creates the plain-HTTP server handle. Every decorator calls
// through to it for the shared connection and error wiring.
type BaseFactory struct{}

// Create implements ServerFactory.
func (f *BaseFactory) Create(opts *ServerOptions) (*ServerHandle, error) {
	return newServerHandle(opts), nil
}

// HTTPSFactory decorates a factory with TLS. Key material comes from the
// configured key/cert pair or PKCS#12 archive; with neither, a self-signed
// development certificate is generated.
type HTTPSFactory struct {
	Inner ServerFactory
}

// Create implements ServerFactory.
func (f *HTTPSFactory) Create(opts *ServerOptions) (*ServerHandle, error) {
	handle, err := f.Inner.Create(opts)
	if err != nil {
		return nil, err
	}

	tlsConfig, reloader, err := buildTLSConfig(opts)
	if err != nil {
		return nil, err
	}

	handle.tlsConfig = tlsConfig
	handle.reloader = reloader
	handle.secure = true
	return handle, nil
}

// HTTP2Factory decorates a factory with HTTP/2 framing: TLS-backed when the
// options carry key material, cleartext h2c otherwise.
type HTTP2Factory struct {
	Inner ServerFactory
}

// Create implements ServerFactory.
func (f *HTTP2Factory) Create(opts *ServerOptions) (*ServerHandle, error) {
	handle, err := f.Inner.Create(opts)
	if err != nil {
		return nil, err
	}

	handle.useHTTP2 = true
	if opts.secure() {
		tlsConfig, reloader, err := buildTLSConfig(opts)
		if err != nil {
			return nil, err
		}
		handle.tlsConfig = tlsConfig
		handle.reloader = reloader
		handle.secure = true
	}
	return handle, nil
}
