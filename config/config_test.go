package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
app:
  name: harvest
runner:
  workers: 4
`)
	t.Setenv("HARVEST_RUNNER_WORKERS", "8")

	loader, err := Load(context.Background(), &Config{Paths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, "harvest", loader.Get("app.name"))

	var cfg struct {
		Runner struct {
			Workers int `mapstructure:"workers"`
		} `mapstructure:"runner"`
	}
	require.NoError(t, loader.Unmarshal(&cfg))
	assert.Equal(t, 8, cfg.Runner.Workers)
}

func TestLoadEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "app:\n  name: harvest\n  env: dev\n")
	writeFile(t, dir, "config.prod.yaml", "app:\n  env: prod\n")
	t.Setenv("HARVEST_ENV", "prod")

	loader, err := Load(context.Background(), &Config{Paths: []string{dir}})
	require.NoError(t, err)

	assert.Equal(t, "prod", loader.Get("app.env"))
	assert.Equal(t, "harvest", loader.Get("app.name"))
}

func TestLoadEmptyConfigFails(t *testing.T) {
	_, err := Load(context.Background(), &Config{Paths: []string{t.TempDir()}, EnvPrefix: "HARVEST_EMPTY_TEST"})
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))
}

func TestWatchChannelClosedOnCancel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "app:\n  name: harvest\n")
	loader, err := Load(context.Background(), &Config{Paths: []string{dir}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := loader.Watch(ctx, "app.name")
	require.NoError(t, err)
	cancel()

	_, open := <-ch
	assert.False(t, open)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("HARVEST_TEST_TOKEN", "secret")

	assert.Equal(t, "Bearer secret", ExpandEnv("Bearer ${HARVEST_TEST_TOKEN}"))
	assert.Equal(t, "https://api.local/v1", ExpandEnv("${HARVEST_TEST_MISSING:https://api.local}/v1"))
	assert.Equal(t, "x=", ExpandEnv("x=${HARVEST_TEST_MISSING}"))
	assert.Equal(t, "plain", ExpandEnv("plain"))

	m := ExpandEnvMap(map[string]string{"Authorization": "Bearer ${HARVEST_TEST_TOKEN}"})
	assert.Equal(t, "Bearer secret", m["Authorization"])
	assert.Nil(t, ExpandEnvMap(nil))
}
