package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chaos-io/rembg-cli/ui"
)

// runScheduled 先立即跑一次批处理，之后按 cron 表达式重复，直到 ctx 结束
func (a *app) runScheduled(ctx context.Context, d *deps, input, output, cronSpec string) error {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(d.logger))
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	_, err := c.AddFunc(cronSpec, func() {
		if _, err := d.remover.BatchRemoveBackground(ctx, input, output, d.model); err != nil {
			d.logger.Error("scheduled batch failed", zap.Error(err))
		}
	})
	if err != nil {
		return errors.Wrapf(err, "invalid schedule %q", cronSpec)
	}

	// 首次运行同步执行，输入目录不存在等错误直接返回
	if _, err := d.remover.BatchRemoveBackground(ctx, input, output, d.model); err != nil {
		return err
	}

	_, _ = ui.Info.Fprintf(a.out, "Watching %s on schedule %q, press Ctrl+C to stop\n", input, cronSpec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
