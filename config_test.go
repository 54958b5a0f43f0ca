package lws

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/lws/feeders"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadOptionsFromYAML(t *testing.T) {
	path := writeConfigFile(t, "lws.yaml", `
port: 9000
hostname: localhost
https: true
max_connections: 12
`)

	feeder, err := FileFeeder(path)
	require.NoError(t, err)

	opts := &ServerOptions{}
	require.NoError(t, LoadOptions(opts, feeder))

	assert.Equal(t, 9000, opts.Port)
	assert.Equal(t, "localhost", opts.Hostname)
	assert.True(t, opts.HTTPS)
	assert.Equal(t, 12, opts.MaxConnections)
}

func TestLoadOptionsFromTOML(t *testing.T) {
	path := writeConfigFile(t, "lws.toml", `
port = 7070
hostname = "127.0.0.1"
module_prefix = "local-"
`)

	feeder, err := FileFeeder(path)
	require.NoError(t, err)

	opts := &ServerOptions{}
	require.NoError(t, LoadOptions(opts, feeder))

	assert.Equal(t, 7070, opts.Port)
	assert.Equal(t, "127.0.0.1", opts.Hostname)
	assert.Equal(t, "local-", opts.ModulePrefix)
}

func TestLoadOptionsFromJSON(t *testing.T) {
	path := writeConfigFile(t, "lws.json", `{"port": 8081, "http2": true}`)

	feeder, err := FileFeeder(path)
	require.NoError(t, err)

	opts := &ServerOptions{}
	require.NoError(t, LoadOptions(opts, feeder))

	assert.Equal(t, 8081, opts.Port)
	assert.True(t, opts.HTTP2)
}

func TestLoadOptionsFeederOrderLaterWins(t *testing.T) {
	base := writeConfigFile(t, "base.yaml", "port: 9000\nhostname: localhost\n")
	override := writeConfigFile(t, "override.yaml", "port: 9001\n")

	baseFeeder, err := FileFeeder(base)
	require.NoError(t, err)
	overrideFeeder, err := FileFeeder(override)
	require.NoError(t, err)

	opts := &ServerOptions{}
	require.NoError(t, LoadOptions(opts, baseFeeder, overrideFeeder))

	assert.Equal(t, 9001, opts.Port)
	// Fields the override feeder does not mention keep the earlier value.
	assert.Equal(t, "localhost", opts.Hostname)
}

func TestLoadOptionsFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("HOSTNAME", "0.0.0.0")

	opts := &ServerOptions{}
	require.NoError(t, LoadOptions(opts, feeders.NewEnvFeeder()))

	assert.Equal(t, 9100, opts.Port)
	assert.Equal(t, "0.0.0.0", opts.Hostname)
}

func TestLoadOptionsNil(t *testing.T) {
	err := LoadOptions(nil)
	assert.ErrorIs(t, err, ErrOptionsNil)
}

func TestFileFeederUnsupportedExtension(t *testing.T) {
	_, err := FileFeeder("lws.ini")
	assert.ErrorIs(t, err, ErrUnsupportedConfig)
}
