package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "flowregistry:", cfg.Storage.Redis.KeyPrefix)
	assert.Equal(t, 24, cfg.Auth.TokenExpiration)
}

func TestSaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Server.Port = 9090
	cfg.Storage.Type = "redis"

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, loaded.Server.Port)
	assert.Equal(t, "redis", loaded.Storage.Type)
	assert.Equal(t, cfg.Storage.Redis.Addr, loaded.Storage.Redis.Addr)
}

func TestSaveAndLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Storage.Type = "postgresql"
	cfg.Storage.Postgres.Host = "db.internal"

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgresql", loaded.Storage.Type)
	assert.Equal(t, "db.internal", loaded.Storage.Postgres.Host)
}

func TestLoadYAMLByExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := []byte("server:\n  host: example.com\n  port: 8443\nstorage:\n  type: dynamodb\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "example.com", loaded.Server.Host)
	assert.Equal(t, 8443, loaded.Server.Port)
	assert.Equal(t, "dynamodb", loaded.Storage.Type)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
