// Package feeders supplies configuration feeders for populating ServerOptions
// from environment variables and config files. Feeders are thin adapters over
// golobby/config's feeder types, extended with key-scoped feeding for files
// that hold more than one configuration section.
package feeders

import "github.com/golobby/config/v3/pkg/feeder"

// EnvFeeder is a feeder that reads environment variables.
type EnvFeeder = feeder.Env

// NewEnvFeeder creates a new EnvFeeder that reads from environment variables.
func NewEnvFeeder() EnvFeeder {
	return EnvFeeder{}
}

// DotEnvFeeder is a feeder that reads .env files.
type DotEnvFeeder = feeder.DotEnv

// NewDotEnvFeeder creates a new DotEnvFeeder that reads from the specified .env file.
func NewDotEnvFeeder(filePath string) DotEnvFeeder {
	return DotEnvFeeder{Path: filePath}
}

// JSONFeeder is a feeder that reads JSON files.
type JSONFeeder = feeder.Json

// NewJSONFeeder creates a new JSONFeeder that reads from the specified JSON file.
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}
