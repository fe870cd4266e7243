package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/chaos-io/rembg-cli/config"
	"github.com/chaos-io/rembg-cli/ui"
)

func (a *app) newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := opts.configPath
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return errors.Wrap(err, "resolve config path")
				}
			}

			if _, err := os.Stat(path); err == nil {
				_, _ = ui.Warn.Fprintf(a.out, "Config already exists: %s\n", path)
				return nil
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			_, _ = ui.Success.Fprintf(a.out, "Config written: %s\n", path)
			return nil
		},
	})
	return cmd
}
