package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/memcore/config"
	"github.com/becomeliminal/memcore/memory"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
scope:
  workspaceId: acme
  userId: derek
weights:
  semantic: 0.5
  keyword: 0.3
  recency: 0.2
shortTerm:
  tokenLimit: 2000
  summarizeOverflow: false
backend:
  driver: pgvector
  dsn: postgres://localhost/memories?sslmode=disable
embedder:
  provider: onnx
  modelPath: /models/minilm.onnx
  tokenizerPath: /models/vocab.txt
  dimensions: 384
  cacheBytes: 1048576
`))
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Scope.WorkspaceID)
	assert.Equal(t, "derek", cfg.Scope.UserID)
	require.NotNil(t, cfg.Weights)
	assert.Equal(t, 0.5, cfg.Weights.Semantic)

	buffer := cfg.ShortTerm.BufferConfig()
	assert.Equal(t, 2000, buffer.TokenLimit)
	assert.False(t, buffer.SummarizeOverflow)

	assert.Equal(t, "pgvector", cfg.Backend.Driver)
	assert.Equal(t, "onnx", cfg.Embedder.Provider)
	assert.EqualValues(t, 1048576, cfg.Embedder.CacheBytes)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
scope:
  workspaceId: acme
backend:
  driver: local
embedder:
  provider: mock
`))
	require.NoError(t, err)

	assert.Nil(t, cfg.Weights, "absent weights defer to the engine default")
	buffer := cfg.ShortTerm.BufferConfig()
	assert.Equal(t, memory.DefaultShortTermConfig.TokenLimit, buffer.TokenLimit)
	assert.True(t, buffer.SummarizeOverflow, "absent flag means enabled")
}

func TestLoadRejectsInvalidScope(t *testing.T) {
	_, err := config.Load(writeConfig(t, `
scope:
  userId: derek
`))
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, memory.TagInvalidScope))
}

func TestLoadRejectsInvalidWeights(t *testing.T) {
	_, err := config.Load(writeConfig(t, `
scope:
  workspaceId: acme
weights:
  semantic: -1
`))
	require.Error(t, err)
	assert.True(t, goerr.HasTag(err, memory.TagValidation))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
