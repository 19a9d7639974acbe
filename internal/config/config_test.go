package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "incident-engine", cfg.App.Name)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, 10, cfg.NATS.MaxReconnects)
	assert.Equal(t, "incidents.db", cfg.Storage.Path)
	assert.Equal(t, ":9090", cfg.Metrics.Address)
	assert.Equal(t, 10*time.Second, cfg.Classifier.InferenceTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Orchestra.ResponseTimeout)
	assert.Equal(t, 3, cfg.Orchestra.MaxRetries)
	assert.Equal(t, 0.8, cfg.Orchestra.ConfidenceThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Resolution.ExecutionTimeout)
	assert.True(t, cfg.Resolution.RollbackEnabled)
	assert.Equal(t, 20, cfg.Resolution.MaxScaleInstances)
	assert.Equal(t, "app-service", cfg.Resolution.ServiceName)
	assert.False(t, cfg.Resolution.UseDockerRuntime)
	assert.Equal(t, "@every 30s", cfg.Monitor.ReportSchedule)
	assert.True(t, cfg.Monitor.EnrichAlerts)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
app:
  name: test-engine

nats:
  url: nats://nats.internal:4222
  max_reconnects: 3

orchestrator:
  response_timeout: 90s
  confidence_threshold: 0.6

resolution:
  max_scale_instances: 8
  rollback_enabled: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "test-engine", cfg.App.Name)
	assert.Equal(t, "nats://nats.internal:4222", cfg.NATS.URL)
	assert.Equal(t, 3, cfg.NATS.MaxReconnects)
	assert.Equal(t, 90*time.Second, cfg.Orchestra.ResponseTimeout)
	assert.Equal(t, 0.6, cfg.Orchestra.ConfidenceThreshold)
	assert.Equal(t, 8, cfg.Resolution.MaxScaleInstances)
	assert.False(t, cfg.Resolution.RollbackEnabled)

	// Unset keys still use defaults.
	assert.Equal(t, "incidents.db", cfg.Storage.Path)
	assert.Equal(t, 3, cfg.Orchestra.MaxRetries)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{{not yaml"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}
