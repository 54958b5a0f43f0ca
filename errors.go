package lws

import (
	"errors"
)

// Server bootstrap errors
var (
	// Configuration validation errors
	ErrConfigConflict      = errors.New("conflicting server options")
	ErrInvalidPort         = errors.New("invalid port number")
	ErrOptionsNil          = errors.New("server options are nil")
	ErrUnsupportedConfig   = errors.New("unsupported config file format")
	ErrInvalidServerModule = errors.New("invalid server module")

	// Module registry errors
	ErrModuleNotFound          = errors.New("module not found")
	ErrModuleAlreadyRegistered = errors.New("module already registered")
	ErrModuleNameEmpty         = errors.New("module name is empty")

	// Middleware stack errors
	ErrMiddlewareResolution  = errors.New("middleware could not be resolved")
	ErrMiddlewareInvalidSpec = errors.New("middleware spec is not a supported type")

	// Server handle errors
	ErrServerNotStarted   = errors.New("server not started")
	ErrServerStarted      = errors.New("server already started")
	ErrNoHandler          = errors.New("no HTTP handler available")
	ErrTLSMaterialMissing = errors.New("no TLS material available")

	// Event stream errors
	ErrObserverNil = errors.New("observer is nil")
)
