package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/chaos-io/rembg-cli/rembg"
)

const (
	PathEnvVar      = "REMBG_CLI_CONFIG"
	BackendEnvVar   = "REMBG_CLI_BACKEND"
	ServerURLEnvVar = "REMBG_CLI_SERVER_URL"
)

const fileHeader = `# rembg-cli configuration
# backend: server (rembg HTTP server) or comfyui.
# With backend comfyui, default_model must name a BiRefNet model, e.g. ` + rembg.ComfyUIModel + `.
`

type Config struct {
	Backend      string        `yaml:"backend"`
	DefaultModel string        `yaml:"default_model"`
	Server       ServerConfig  `yaml:"server"`
	ComfyUI      ComfyUIConfig `yaml:"comfyui"`
	Listen       string        `yaml:"listen"`
	Log          LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ComfyUIConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() Config {
	return Config{
		Backend:      rembg.BackendServer,
		DefaultModel: rembg.DefaultModel,
		Server: ServerConfig{
			URL:     "http://127.0.0.1:7000",
			Timeout: 2 * time.Minute,
		},
		ComfyUI: ComfyUIConfig{
			URL:          "http://127.0.0.1:8188",
			Timeout:      5 * time.Minute,
			PollInterval: time.Second,
		},
		Listen: ":7001",
		Log: LogConfig{
			Level: "error",
		},
	}
}

// Load 读取配置文件；path 为空时依次使用环境变量和用户配置目录，文件不存在时返回默认配置
func Load(path string) (Config, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return applyEnv(Default()), nil
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Default(), errors.Wrapf(err, "parse config %s", path)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return Default(), errors.Wrapf(err, "read config %s", path)
	}

	return applyEnv(cfg), nil
}

// DefaultPath $REMBG_CLI_CONFIG 或 <UserConfigDir>/rembg-cli/config.yaml
func DefaultPath() (string, error) {
	if configured := strings.TrimSpace(os.Getenv(PathEnvVar)); configured != "" {
		return configured, nil
	}
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "rembg-cli", "config.yaml"), nil
}

// Save 写出配置文件，供 config init 使用
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	data = append([]byte(fileHeader), data...)
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}

func applyEnv(cfg Config) Config {
	if v := strings.TrimSpace(os.Getenv(BackendEnvVar)); v != "" {
		cfg.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv(ServerURLEnvVar)); v != "" {
		cfg.Server.URL = v
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = rembg.DefaultModel
	}
	return cfg
}

// RembgConfig 转换为会话工厂配置
func (c Config) RembgConfig(opts rembg.RemoveOptions) rembg.Config {
	return rembg.Config{
		Backend:             c.Backend,
		ServerURL:           c.Server.URL,
		ServerTimeout:       c.Server.Timeout,
		ComfyUIURL:          c.ComfyUI.URL,
		ComfyUITimeout:      c.ComfyUI.Timeout,
		ComfyUIPollInterval: c.ComfyUI.PollInterval,
		Options:             opts,
	}
}
