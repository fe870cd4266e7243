package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/rembg-cli/rembg"
)

func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Setenv(PathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv(BackendEnvVar, "")
	t.Setenv(ServerURLEnvVar, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_File(t *testing.T) {
	t.Setenv(BackendEnvVar, "")
	t.Setenv(ServerURLEnvVar, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend: comfyui
default_model: isnet-general-use
comfyui:
  url: http://gpu-box:8188
  poll_interval: 250ms
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, rembg.BackendComfyUI, cfg.Backend)
	assert.Equal(t, "isnet-general-use", cfg.DefaultModel)
	assert.Equal(t, "http://gpu-box:8188", cfg.ComfyUI.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.ComfyUI.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	// 未配置的字段保留默认值
	assert.Equal(t, 5*time.Minute, cfg.ComfyUI.Timeout)
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(PathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv(BackendEnvVar, "comfyui")
	t.Setenv(ServerURLEnvVar, "http://rembg:7000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "comfyui", cfg.Backend)
	assert.Equal(t, "http://rembg:7000", cfg.Server.URL)
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv(BackendEnvVar, "")
	t.Setenv(ServerURLEnvVar, "")

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := Default()
	want.Server.URL = "http://10.0.0.2:7000"
	want.Server.Timeout = 90 * time.Second
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "default_model must name a BiRefNet model, e.g. "+rembg.ComfyUIModel)
}

func TestConfig_RembgConfig(t *testing.T) {
	cfg := Default()
	opts := rembg.RemoveOptions{OnlyMask: true}

	rc := cfg.RembgConfig(opts)
	assert.Equal(t, cfg.Backend, rc.Backend)
	assert.Equal(t, cfg.Server.URL, rc.ServerURL)
	assert.Equal(t, cfg.Server.Timeout, rc.ServerTimeout)
	assert.Equal(t, cfg.ComfyUI.PollInterval, rc.ComfyUIPollInterval)
	assert.Equal(t, opts, rc.Options)
}
