package lws

import (
	"fmt"
	"time"
)

// Default values applied by ServerOptions.Validate.
const (
	DefaultPort         = 8000
	DefaultModulePrefix = "lws-"
)

// ServerOptions defines the configuration for one server instance. Once
// validated it is treated as immutable; the factory chain, middleware stack
// and event aggregator all read from the same record.
type ServerOptions struct {
	// Port is the port number to listen on.
	Port int `yaml:"port" json:"port" toml:"port" env:"PORT"`

	// Hostname restricts listening to one interface. When empty the server
	// binds all interfaces and reports one endpoint URL per interface.
	Hostname string `yaml:"hostname" json:"hostname" toml:"hostname" env:"HOSTNAME"`

	// MaxConnections caps the number of concurrently accepted connections.
	// Zero means unlimited.
	MaxConnections int `yaml:"max_connections" json:"maxConnections" toml:"max_connections" env:"MAX_CONNECTIONS"`

	// KeepAliveTimeout is how long an idle keep-alive connection is held
	// open before the server closes it. Zero keeps the transport default.
	KeepAliveTimeout time.Duration `yaml:"keep_alive_timeout" json:"keepAliveTimeout" toml:"keep_alive_timeout" env:"KEEP_ALIVE_TIMEOUT"`

	// HTTPS forces the HTTPS transport even without key material; a
	// self-signed development certificate is generated in that case.
	HTTPS bool `yaml:"https" json:"https" toml:"https" env:"HTTPS"`

	// HTTP2 selects the HTTP/2 transport. Secure when TLS material is
	// configured, h2c (cleartext HTTP/2) otherwise. HTTPS takes priority.
	HTTP2 bool `yaml:"http2" json:"http2" toml:"http2" env:"HTTP2"`

	// Key and Cert are paths to a PEM private key and certificate.
	// They must be supplied together.
	Key  string `yaml:"key" json:"key" toml:"key" env:"KEY"`
	Cert string `yaml:"cert" json:"cert" toml:"cert" env:"CERT"`

	// PFX is the path to a PKCS#12 archive holding key and certificate.
	// Mutually exclusive with HTTPS plus Key/Cert.
	PFX string `yaml:"pfx" json:"pfx" toml:"pfx" env:"PFX"`

	// Ciphers is an optional colon or comma separated list of TLS cipher
	// suite names, e.g. "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256".
	Ciphers string `yaml:"ciphers" json:"ciphers" toml:"ciphers" env:"CIPHERS"`

	// SecureProtocol pins the minimum TLS protocol version, e.g. "TLSv1_2".
	SecureProtocol string `yaml:"secure_protocol" json:"secureProtocol" toml:"secure_protocol" env:"SECURE_PROTOCOL"`

	// Server names a custom server factory module to resolve through the
	// module registry. Never a built-in transport name.
	Server string `yaml:"server" json:"server" toml:"server" env:"SERVER"`

	// Stack is the ordered list of middleware specifications. Each entry is
	// a Middleware value, a MiddlewareConstructor, a chi-style
	// func(http.Handler) http.Handler, a registry name string, or an
	// already-assembled *Stack.
	Stack []MiddlewareSpec `yaml:"stack" json:"stack" toml:"stack"`

	// ModulePrefix is the naming convention for installable modules:
	// a spec "log" also matches a module registered as "lws-log".
	ModulePrefix string `yaml:"module_prefix" json:"modulePrefix" toml:"module_prefix" env:"MODULE_PREFIX"`

	// ModuleDir lists registry namespaces searched after the plain and
	// prefixed names, mirroring filesystem search paths.
	ModuleDir []string `yaml:"module_dir" json:"moduleDir" toml:"module_dir" env:"MODULE_DIR"`
}

// builtinServerNames are transport names owned by this package. The Server
// option must never name one of these; the built-in transports are selected
// through the HTTPS/HTTP2 options instead.
var builtinServerNames = map[string]bool{
	"http":  true,
	"https": true,
	"http2": true,
}

// Validate checks the configuration and applies default values.
// It enforces the option invariants: Key and Cert are both present or both
// absent, and HTTPS is mutually exclusive with PFX.
func (o *ServerOptions) Validate() error {
	if o == nil {
		return ErrOptionsNil
	}

	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, o.Port)
	}

	if o.ModulePrefix == "" {
		o.ModulePrefix = DefaultModulePrefix
	}

	if (o.Key == "") != (o.Cert == "") {
		return fmt.Errorf("%w: key and cert must be supplied together", ErrConfigConflict)
	}
	if o.HTTPS && o.PFX != "" {
		return fmt.Errorf("%w: https and pfx are mutually exclusive", ErrConfigConflict)
	}

	return nil
}

// secure reports whether the options carry any TLS material.
func (o *ServerOptions) secure() bool {
	return o.Key != "" || o.PFX != ""
}
