package cmd

import (
	"context"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chaos-io/rembg-cli/config"
	"github.com/chaos-io/rembg-cli/logging"
	"github.com/chaos-io/rembg-cli/preprocess"
	"github.com/chaos-io/rembg-cli/rembg"
	"github.com/chaos-io/rembg-cli/remover"
	"github.com/chaos-io/rembg-cli/ui"
)

type options struct {
	configPath string
	verbose    bool
	backend    string
	serverURL  string
	model      string

	maxSize         int
	skipTransparent bool
	crop            bool
	alphaMatting    bool
	onlyMask        bool
	postProcessMask bool

	output       string
	batch        bool
	listModels   bool
	skipExisting bool
	schedule     string
}

type factoryFunc func(cfg rembg.Config, logger *zap.Logger) (rembg.SessionFactory, error)

type app struct {
	out        io.Writer
	errOut     io.Writer
	newFactory factoryFunc
}

// Execute 运行命令行并返回进程退出码
func Execute(ctx context.Context, args []string) int {
	a := &app{
		out:        os.Stdout,
		errOut:     os.Stderr,
		newFactory: rembg.NewSessionFactory,
	}
	return a.run(ctx, args)
}

func (a *app) run(ctx context.Context, args []string) int {
	root := a.newRootCmd()
	root.InitDefaultHelpCmd()
	root.SetArgs(inputArgs(root, args))
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = ui.Error.Fprintf(a.errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "rembg-cli <input>",
		Short:         "Remove background from images using AI",
		Long:          "Remove background from a single image, or from every supported image in a directory.\nSupported formats: jpg, jpeg, png, bmp, tiff, webp.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRemove(cmd, opts, args)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (default $"+config.PathEnvVar+" or <user config dir>/rembg-cli/config.yaml)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging on stderr")
	pf.StringVar(&opts.backend, "backend", "", "Segmentation backend: server or comfyui (comfyui needs a BiRefNet model, e.g. -m "+rembg.ComfyUIModel+")")
	pf.StringVar(&opts.serverURL, "server-url", "", "rembg server base url")
	pf.StringVarP(&opts.model, "model", "m", rembg.DefaultModel, "Model to use; names are passed to the backend unchecked (rembg models for server, BiRefNet models for comfyui)")
	pf.IntVar(&opts.maxSize, "max-size", 0, "Downscale inputs whose longest side exceeds this many pixels (0 disables)")
	pf.BoolVar(&opts.skipTransparent, "skip-transparent", false, "Keep inputs that already have transparency instead of segmenting them")
	pf.BoolVar(&opts.crop, "crop", false, "Crop the result to a square around the subject")
	pf.BoolVarP(&opts.alphaMatting, "alpha-matting", "a", false, "Ask the backend for alpha matting")
	pf.BoolVar(&opts.onlyMask, "only-mask", false, "Output only the mask")
	pf.BoolVar(&opts.postProcessMask, "post-process-mask", false, "Post-process the mask")

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "Output file or directory")
	f.BoolVarP(&opts.batch, "batch", "b", false, "Process all images in directory")
	f.BoolVar(&opts.listModels, "list-models", false, "List available models")
	f.BoolVar(&opts.skipExisting, "skip-existing", false, "In batch mode skip images whose output is up to date")
	f.StringVar(&opts.schedule, "schedule", "", "In batch mode re-run on this cron schedule until interrupted, e.g. \"@every 5m\"")

	cmd.AddCommand(a.newServeCmd(opts), a.newConfigCmd(opts))
	return cmd
}

func (a *app) runRemove(cmd *cobra.Command, opts *options, args []string) error {
	if opts.listModels {
		rembg.PrintModels(a.out)
		return nil
	}
	if len(args) == 0 {
		return errors.New("input path is required")
	}
	input := args[0]

	batch := opts.batch || isDir(input)
	if opts.schedule != "" {
		if !batch {
			return errors.New("--schedule requires batch mode")
		}
		opts.skipExisting = true
	}

	rt, err := a.setup(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.logger.Sync()
	}()

	ctx := cmd.Context()
	switch {
	case opts.schedule != "":
		return a.runScheduled(ctx, rt, input, opts.output, opts.schedule)
	case batch:
		_, err = rt.remover.BatchRemoveBackground(ctx, input, opts.output, rt.model)
		return err
	default:
		// 处理失败已在控制台输出，只有输入不存在才算命令失败
		_, err = rt.remover.RemoveBackground(ctx, input, opts.output, rt.model)
		return err
	}
}

type deps struct {
	cfg     config.Config
	logger  *zap.Logger
	model   string
	remover *remover.Remover
}

func (a *app) setup(cmd *cobra.Command, opts *options) (*deps, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.backend != "" {
		cfg.Backend = opts.backend
	}
	if opts.serverURL != "" {
		cfg.Server.URL = opts.serverURL
	}

	level := cfg.Log.Level
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.NewLogger(level, cfg.Log.Development)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	model := cfg.DefaultModel
	if cmd.Flags().Changed("model") {
		model = opts.model
	}

	factory, err := a.newFactory(cfg.RembgConfig(rembg.RemoveOptions{
		AlphaMatting:    opts.alphaMatting,
		OnlyMask:        opts.onlyMask,
		PostProcessMask: opts.postProcessMask,
	}), logger)
	if err != nil {
		return nil, errors.Wrap(err, "create session factory")
	}

	prep := &preprocess.Preprocessor{
		MaxSize:         opts.maxSize,
		SkipTransparent: opts.skipTransparent,
		Crop:            opts.crop,
	}

	logger.Debug("configured",
		zap.String("backend", cfg.Backend),
		zap.String("model", model),
		zap.Bool("preprocess", prep.Enabled()),
	)

	return &deps{
		cfg:    cfg,
		logger: logger,
		model:  model,
		remover: remover.New(factory,
			remover.WithOutput(a.out),
			remover.WithLogger(logger),
			remover.WithPreprocessor(prep),
			remover.WithSkipExisting(opts.skipExisting),
		),
	}, nil
}

// inputArgs 当与一级子命令同名的参数是磁盘上存在的路径时，把它当作输入处理；
// 带了该子命令自己的 flag 或下级子命令时仍按子命令处理
func inputArgs(root *cobra.Command, args []string) []string {
	sub, rest, err := root.Find(args)
	if err != nil || sub == root || sub.Parent() != root {
		return args
	}

	i := slices.IndexFunc(args, func(arg string) bool {
		return arg == sub.Name() || sub.HasAlias(arg)
	})
	if i < 0 || slices.Contains(args[:i], "--") {
		return args
	}
	if _, err := os.Stat(args[i]); err != nil {
		return args
	}
	for _, arg := range rest {
		if usesLocalFlag(sub, arg) {
			return args
		}
	}

	// 放到 "--" 之后，cobra 不再把它当成子命令
	out := slices.Concat(args[:i], args[i+1:])
	if j := slices.Index(out, "--"); j >= 0 {
		return slices.Insert(out, j+1, args[i])
	}
	return append(out, "--", args[i])
}

func usesLocalFlag(cmd *cobra.Command, arg string) bool {
	flags := cmd.LocalNonPersistentFlags()
	switch {
	case strings.HasPrefix(arg, "--"):
		name, _, _ := strings.Cut(arg[2:], "=")
		return name != "" && flags.Lookup(name) != nil
	case strings.HasPrefix(arg, "-") && len(arg) > 1:
		return flags.ShorthandLookup(arg[1:2]) != nil
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
