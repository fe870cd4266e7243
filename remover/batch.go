package remover

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chaos-io/rembg-cli/ui"
	"github.com/chaos-io/rembg-cli/util"
)

type Failure struct {
	Path string
	Err  error
}

type BatchResult struct {
	OutputDir string
	// Processed 成功写出的文件数
	Processed int
	Skipped   int
	Failures  []Failure
}

// BatchRemoveBackground 处理目录下所有支持格式的图片，单个文件失败不会中断整批
//
// 输入目录不存在时返回 ErrNotFound，此时不会创建输出目录。
// outputDir 为空时使用 <inputDir>/no_background，不存在则创建（只建一层）。
func (r *Remover) BatchRemoveBackground(ctx context.Context, inputDir, outputDir, model string) (*BatchResult, error) {
	if err := checkExists(inputDir, "input directory"); err != nil {
		return nil, err
	}
	if outputDir == "" {
		outputDir = DefaultOutputDir(inputDir)
	}

	if err := os.Mkdir(outputDir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, errors.Wrapf(err, "create output directory %s", outputDir)
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, errors.Wrapf(err, "read input directory %s", inputDir)
	}

	logger := r.logger.With(zap.String("input_dir", inputDir), zap.String("output_dir", outputDir))
	defer util.Trace(logger, "batch remove background")()

	result := &BatchResult{OutputDir: outputDir}
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			r.printSummary(result)
			return result, errors.Wrap(err, "batch interrupted")
		}

		input := filepath.Join(inputDir, entry.Name())
		output := OutputPathIn(outputDir, input)

		if r.skipExisting && upToDate(input, output) {
			_, _ = ui.Muted.Fprintf(r.out, "Skipping %s (output is up to date)\n", input)
			result.Skipped++
			continue
		}

		if res, err := r.process(ctx, input, output, model); err != nil {
			result.Failures = append(result.Failures, Failure{Path: input, Err: err})
		} else if res != "" {
			result.Processed++
		}
	}

	r.printSummary(result)
	logger.Info("batch complete",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

func (r *Remover) printSummary(result *BatchResult) {
	_, _ = ui.Header.Fprintln(r.out, "\nBatch processing complete!")
	_, _ = ui.Success.Fprintf(r.out, "Processed %d images\n", result.Processed)
	if result.Skipped > 0 {
		_, _ = ui.Muted.Fprintf(r.out, "Skipped %d up-to-date images\n", result.Skipped)
	}
	if len(result.Failures) > 0 {
		_, _ = ui.Warn.Fprintf(r.out, "Failed %d images\n", len(result.Failures))
	}
	_, _ = ui.Path.Fprintf(r.out, "Output directory: %s\n", result.OutputDir)
}

func upToDate(input, output string) bool {
	in, err := os.Stat(input)
	if err != nil {
		return false
	}
	out, err := os.Stat(output)
	if err != nil {
		return false
	}
	return !out.ModTime().Before(in.ModTime())
}
