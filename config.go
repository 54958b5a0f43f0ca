package lws

import (
	"fmt"
	"path/filepath"

	"github.com/golobby/config/v3"

	"github.com/GoCodeAlone/lws/feeders"
)

// Feeder populates a configuration structure from one source.
type Feeder = config.Feeder

// ComplexFeeder extends the basic Feeder interface with key-scoped feeding
// for files that hold more than one configuration section.
type ComplexFeeder interface {
	Feeder
	FeedKey(string, interface{}) error
}

// ConfigFeeders is the default feeder chain applied by LoadOptions when none
// are given: environment variables only. Config discovery and deep merging
// of option sources stay outside this package; callers hand LoadOptions the
// feeders for whatever files they discovered.
var ConfigFeeders = []Feeder{
	feeders.NewEnvFeeder(),
}

// LoadOptions feeds the server options from the given feeders, in order;
// later feeders override earlier ones. With no feeders the default
// ConfigFeeders chain applies. Validation is left to Listen so callers can
// still adjust the record programmatically.
func LoadOptions(opts *ServerOptions, configFeeders ...Feeder) error {
	if opts == nil {
		return ErrOptionsNil
	}

	if len(configFeeders) == 0 {
		configFeeders = ConfigFeeders
	}

	for _, f := range configFeeders {
		if err := f.Feed(opts); err != nil {
			return fmt.Errorf("feeding server options: %w", err)
		}
	}
	return nil
}

// FileFeeder creates the feeder matching a config file's extension:
// .toml, .yaml/.yml or .json.
func FileFeeder(path string) (Feeder, error) {
	switch filepath.Ext(path) {
	case ".toml":
		return feeders.NewTomlFeeder(path), nil
	case ".yaml", ".yml":
		return feeders.NewYamlFeeder(path), nil
	case ".json":
		return feeders.NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfig, path)
	}
}
