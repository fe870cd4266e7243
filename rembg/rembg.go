package rembg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	nhttp "github.com/chaos-io/rembg-cli/util/http"
)

const (
	BackendServer  = "server"
	BackendComfyUI = "comfyui"

	DefaultModel = "u2net"

	// ComfyUIModel comfyui 后端的 BiRefNetRMBG 节点只认 BiRefNet 系列模型名
	ComfyUIModel = "BiRefNet-general"
)

// Session 绑定一个模型的可复用推理会话
// 输入为原始图片字节，输出为带 alpha 通道的 PNG 字节
type Session interface {
	Model() string
	Remove(ctx context.Context, data []byte) ([]byte, error)
}

// SessionFactory 按模型名创建会话；模型名不做校验，由后端在调用时拒绝
type SessionFactory func(model string) (Session, error)

// RemoveOptions 透传给后端的抠图参数
type RemoveOptions struct {
	AlphaMatting    bool
	OnlyMask        bool
	PostProcessMask bool
}

type Config struct {
	Backend string

	ServerURL     string
	ServerTimeout time.Duration

	ComfyUIURL          string
	ComfyUITimeout      time.Duration
	ComfyUIPollInterval time.Duration

	Options RemoveOptions
}

func NewSessionFactory(cfg Config, logger *zap.Logger) (SessionFactory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendServer:
		if cfg.ServerURL == "" {
			return nil, errors.New("rembg server url is empty")
		}
		cli := nhttp.NewHTTPClientWithTimeout(cfg.ServerTimeout)
		return func(model string) (Session, error) {
			return newServerSession(cli, cfg.ServerURL, model, cfg.Options, logger), nil
		}, nil
	case BackendComfyUI:
		if cfg.ComfyUIURL == "" {
			return nil, errors.New("comfyui url is empty")
		}
		cli := nhttp.NewHTTPClient()
		return func(model string) (Session, error) {
			s, err := newComfyUISession(cli, cfg.ComfyUIURL, model, cfg.ComfyUITimeout, cfg.ComfyUIPollInterval, logger)
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
