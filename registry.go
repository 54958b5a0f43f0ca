package lws

import (
	"fmt"
	"sync"
)

// ModuleRegistry maps module names to loadable values. It is the explicit
// lookup contract behind dynamic plugin resolution: server factory modules
// resolve to FactoryDecorator values and middleware modules resolve to
// Middleware or MiddlewareConstructor values. Callers type-assert the
// resolved value against the contract they need.
//
// Resolution for a name tries, in order: the name itself, prefix+name, and
// dir+"/"+name then dir+"/"+prefix+name for each configured module dir.
// Registrations under a dir namespace stand in for filesystem search paths.
type ModuleRegistry struct {
	mu      sync.RWMutex
	modules map[string]any
}

// NewModuleRegistry creates an empty module registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{
		modules: make(map[string]any),
	}
}

// Register adds a module under the given name. Registering the same name
// twice is an error; resolution must stay deterministic.
func (r *ModuleRegistry) Register(name string, module any) error {
	if name == "" {
		return ErrModuleNameEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("%w: %s", ErrModuleAlreadyRegistered, name)
	}
	r.modules[name] = module
	return nil
}

// Resolve locates a module by name, the plugin-prefix convention, or a
// module-dir namespace. Resolution is idempotent: the same name always
// yields the same module. A miss returns an error wrapping ErrModuleNotFound
// that names the failing spec.
func (r *ModuleRegistry) Resolve(name, prefix string, dirs []string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := []string{name}
	if prefix != "" {
		candidates = append(candidates, prefix+name)
	}
	for _, dir := range dirs {
		candidates = append(candidates, dir+"/"+name)
		if prefix != "" {
			candidates = append(candidates, dir+"/"+prefix+name)
		}
	}

	for _, candidate := range candidates {
		if module, ok := r.modules[candidate]; ok {
			return module, nil
		}
	}

	return nil, fmt.Errorf("%w: %s (tried %v)", ErrModuleNotFound, name, candidates)
}

// defaultRegistry holds the built-in middleware modules registered by this
// package. Listen uses it unless WithRegistry supplies another one.
var defaultRegistry = NewModuleRegistry()

// DefaultRegistry returns the registry Listen consults by default. Built-in
// middleware modules ("lws-log", "lws-cors") are registered on it at init.
func DefaultRegistry() *ModuleRegistry {
	return defaultRegistry
}
