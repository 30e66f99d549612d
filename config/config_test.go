package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 6000, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "tcp4://0.0.0.0:6000", cfg.ProtoAddr())
	assert.Equal(t, 0, cfg.MaxConnections)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("overrides only defined keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "echo.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
port = 7007
max_connections = 16
socket_send_buffer = 8192
log_level = "debug"
session_ttl = "30s"
`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7007, cfg.Port)
		assert.Equal(t, 16, cfg.MaxConnections)
		assert.Equal(t, 8192, cfg.SocketSendBuffer)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 30*time.Second, cfg.SessionTTL)
		assert.Equal(t, DefaultHost, cfg.Host)
		assert.Equal(t, DefaultReadBufferCap, cfg.ReadBufferCap)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
		assert.Error(t, err)
	})
}

func TestParse(t *testing.T) {
	t.Run("empty document is the default", func(t *testing.T) {
		cfg, err := Parse("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("unknown key is rejected", func(t *testing.T) {
		_, err := Parse(`backlog = 128`)
		assert.ErrorContains(t, err, "backlog")
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Parse(`session_ttl = "soon"`)
		assert.ErrorContains(t, err, "session_ttl")
	})

	t.Run("invalid values fail validation", func(t *testing.T) {
		cases := map[string]string{
			"port":      `port = 70000`,
			"host":      `host = "::1"`,
			"name":      `name = " "`,
			"buffer":    `read_buffer_cap = 0`,
			"max conns": `max_connections = -1`,
			"send buf":  `socket_send_buffer = -1`,
			"log level": `log_level = "loud"`,
		}
		for name, doc := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := Parse(doc)
				assert.Error(t, err)
			})
		}
	})
}

func TestLoad_exampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "cmd", "echoserver", "echo.example.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
