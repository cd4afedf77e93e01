package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("test-signing-key"))

	t.Run("valid config", func(t *testing.T) {
		cfg, err := NewConfig("localhost:8000", "host=localhost", secret, []string{"http://localhost:3000"})
		require.NoError(t, err)
		assert.Equal(t, "localhost:8000", cfg.ServerAddr)
		assert.Equal(t, "host=localhost", cfg.DatabaseDSN)
		assert.Equal(t, []byte("test-signing-key"), cfg.SigningKey)
		assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
		assert.Equal(t, 5*time.Minute, cfg.StaleTimeout)
	})

	t.Run("empty server address", func(t *testing.T) {
		_, err := NewConfig("", "host=localhost", secret, nil)
		assert.EqualError(t, err, "server address cannot be empty")
	})

	t.Run("empty dsn", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "", secret, nil)
		assert.EqualError(t, err, "database DSN cannot be empty")
	})

	t.Run("empty signing secret", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "host=localhost", "", nil)
		assert.EqualError(t, err, "signing secret cannot be empty")
	})

	t.Run("invalid base64 signing secret", func(t *testing.T) {
		_, err := NewConfig("localhost:8000", "host=localhost", "not-base64!!!", nil)
		assert.ErrorContains(t, err, "decode signing secret")
	})
}
