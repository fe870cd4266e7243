package remover

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chaos-io/rembg-cli/preprocess"
	"github.com/chaos-io/rembg-cli/rembg"
	"github.com/chaos-io/rembg-cli/ui"
	"github.com/chaos-io/rembg-cli/util"
)

// Remover 逐个文件调用抠图会话并写出结果，严格串行
type Remover struct {
	newSession   rembg.SessionFactory
	out          io.Writer
	logger       *zap.Logger
	prep         *preprocess.Preprocessor
	skipExisting bool
}

type Option func(*Remover)

// WithOutput 进度信息的输出位置，默认 stdout
func WithOutput(w io.Writer) Option {
	return func(r *Remover) { r.out = w }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Remover) { r.logger = logger }
}

func WithPreprocessor(p *preprocess.Preprocessor) Option {
	return func(r *Remover) { r.prep = p }
}

// WithSkipExisting 批量模式下跳过输出已存在且不旧于输入的文件
func WithSkipExisting(skip bool) Option {
	return func(r *Remover) { r.skipExisting = skip }
}

func New(newSession rembg.SessionFactory, opts ...Option) *Remover {
	r := &Remover{
		newSession: newSession,
		out:        os.Stdout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RemoveBackground 移除单张图片背景
//
// 输入不存在时返回 ErrNotFound；读取、抠图、写出阶段的失败只打印到控制台，
// 返回空路径和 nil error。output 为空时写到 <父目录>/<主干>.png。
func (r *Remover) RemoveBackground(ctx context.Context, input, output, model string) (string, error) {
	if err := checkExists(input, "input file"); err != nil {
		return "", err
	}
	if output == "" {
		output = DefaultOutputPath(input)
	}

	result, err := r.process(ctx, input, output, model)
	if err != nil {
		return "", nil
	}
	return result, nil
}

// RemoveBytes 对内存中的图片字节执行完整的抠图流程
func (r *Remover) RemoveBytes(ctx context.Context, data []byte, model string) ([]byte, error) {
	return r.removeBytes(ctx, "", data, model)
}

func (r *Remover) process(ctx context.Context, input, output, model string) (string, error) {
	_, _ = ui.Info.Fprintf(r.out, "Processing: %s\n", input)
	_, _ = ui.Muted.Fprintf(r.out, "Model: %s\n", model)

	logger := r.logger.With(zap.String("input", input), zap.String("output", output), zap.String("model", model))
	defer util.Trace(logger, "remove background")()

	err := r.processFile(ctx, input, output, model)
	if err != nil {
		_, _ = ui.Error.Fprintf(r.out, "Error processing image: %v\n", err)
		var pe *ProcessError
		if errors.As(err, &pe) {
			logger = logger.With(zap.String("stage", string(pe.Stage)))
		}
		logger.Warn("process image failed", zap.Error(err))
		return "", err
	}

	_, _ = ui.Success.Fprintln(r.out, "Background removed successfully!")
	_, _ = ui.Path.Fprintf(r.out, "Output saved to: %s\n", output)
	logger.Info("background removed")
	return output, nil
}

func (r *Remover) processFile(ctx context.Context, input, output, model string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return newProcessError(StageRead, input, err)
	}

	result, err := r.removeBytes(ctx, input, data, model)
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, result, 0o644); err != nil {
		return newProcessError(StageWrite, output, err)
	}
	return nil
}

func (r *Remover) removeBytes(ctx context.Context, name string, data []byte, model string) ([]byte, error) {
	data, done, err := r.prep.Prepare(data)
	if err != nil {
		return nil, newProcessError(StagePrepare, name, err)
	}
	if done {
		r.logger.Debug("input already transparent, segmentation skipped", zap.String("input", name))
	} else if data, err = r.segment(ctx, name, data, model); err != nil {
		return nil, err
	}

	// 跳过抠图的输入同样要裁剪
	out, err := r.prep.Finish(data)
	if err != nil {
		return nil, newProcessError(StageFinish, name, err)
	}
	return out, nil
}

func (r *Remover) segment(ctx context.Context, name string, data []byte, model string) ([]byte, error) {
	// 每个文件都新建会话
	session, err := r.newSession(model)
	if err != nil {
		return nil, newProcessError(StageSession, name, err)
	}

	logger := r.logger.With(zap.String("input", name), zap.String("session_model", session.Model()))
	logger.Debug("session created")

	out, err := session.Remove(ctx, data)
	if err != nil {
		logger.Debug("segmentation failed", zap.Error(err))
		return nil, newProcessError(StageSegment, name, err)
	}
	return out, nil
}

func checkExists(path, what string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s %w: %s", what, ErrNotFound, path)
	}
	// 无权限等 stat 失败同样视为不存在，保留原因
	return fmt.Errorf("%s %w: %s: %w", what, ErrNotFound, path, err)
}
