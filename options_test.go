package lws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerOptionsDefaults(t *testing.T) {
	opts := &ServerOptions{}
	require.NoError(t, opts.Validate())

	assert.Equal(t, DefaultPort, opts.Port)
	assert.Equal(t, DefaultModulePrefix, opts.ModulePrefix)
}

func TestServerOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    ServerOptions
		wantErr error
	}{
		{
			name:    "key without cert",
			opts:    ServerOptions{Key: "server.key"},
			wantErr: ErrConfigConflict,
		},
		{
			name:    "cert without key",
			opts:    ServerOptions{Cert: "server.crt"},
			wantErr: ErrConfigConflict,
		},
		{
			name:    "https with pfx",
			opts:    ServerOptions{HTTPS: true, PFX: "server.pfx"},
			wantErr: ErrConfigConflict,
		},
		{
			name:    "port out of range",
			opts:    ServerOptions{Port: 70000},
			wantErr: ErrInvalidPort,
		},
		{
			name: "key and cert together",
			opts: ServerOptions{Key: "server.key", Cert: "server.crt"},
		},
		{
			name: "pfx without https flag",
			opts: ServerOptions{PFX: "server.pfx"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestServerOptionsValidateNil(t *testing.T) {
	var opts *ServerOptions
	assert.ErrorIs(t, opts.Validate(), ErrOptionsNil)
}
