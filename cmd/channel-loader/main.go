package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tg-channel-speckit/internal/domain"
	"tg-channel-speckit/internal/infra/config"
	applog "tg-channel-speckit/internal/infra/log"
	"tg-channel-speckit/internal/infra/metrics"
	"tg-channel-speckit/internal/usecase/channels"
	"tg-channel-speckit/internal/usecase/export"
)

const (
	appName    = "channel-loader"
	appVersion = "1.0.0"
)

const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 2
)

type options struct {
	identifier string
	limit      int
	force      bool
	version    bool
	partial    bool
	statusAddr string
	envFile    string
}

func main() {
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitError
	}
	if opts.version {
		fmt.Fprintf(stdout, "%s %s\n", appName, appVersion)
		return exitOK
	}

	if _, err := channels.ParseAlias(opts.identifier); err != nil {
		return reportError(ctx, stderr, domain.NewAccessError(opts.identifier,
			fmt.Sprintf("Invalid channel identifier: %s", opts.identifier), err))
	}

	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return reportError(ctx, stderr, err)
	}
	if opts.statusAddr != "" {
		cfg.StatusAddr = opts.statusAddr
	}

	logger := applog.NewLogger(cfg.AppEnv, cfg.LogLevel, stderr)

	outputPath := export.OutputPath(cfg.OutputDir, opts.identifier)
	if err := export.CheckOverwrite(outputPath, opts.force); err != nil {
		if errors.Is(err, export.ErrOutputExists) {
			fmt.Fprintf(stderr, "Output file already exists: %s\n", outputPath)
			fmt.Fprintln(stderr, "Use -force to overwrite")
			return exitError
		}
		return reportError(ctx, stderr, domain.NewLoaderError(err.Error(), err))
	}

	app, err := newApp(ctx, cfg, logger, stdin, stderr)
	if err != nil {
		return reportError(ctx, stderr, err)
	}
	defer app.Close()

	if cfg.StatusAddr != "" {
		app.StartStatusServer(ctx, cfg.StatusAddr)
	}

	connectCtx := ctx
	if cfg.MTProto.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.MTProto.ConnectTimeout)
		defer cancel()
	}
	if err := app.client.Connect(connectCtx); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = domain.NewNetworkError("Timed out connecting to Telegram", err)
		}
		return reportError(ctx, stderr, err)
	}
	defer func() { _ = app.client.Disconnect() }()

	svc := export.NewService(app.client, logger,
		export.WithSinks(app.sinks...),
		export.WithReporter(export.NewConsoleReporter(stdout)),
		export.WithPartial(opts.partial),
	)
	if _, err := svc.LoadChannel(ctx, opts.identifier, outputPath, opts.limit); err != nil {
		return reportError(ctx, stderr, err)
	}
	return exitOK
}

// parseArgs разбирает флаги, допуская их и до, и после идентификатора канала.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&opts.limit, "limit", 0, "Maximum number of posts to load (0 = all)")
	fs.BoolVar(&opts.force, "force", false, "Overwrite existing output file")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	fs.BoolVar(&opts.partial, "partial", false, "Save posts loaded so far if the export is interrupted")
	fs.StringVar(&opts.statusAddr, "status-addr", "", "Serve /metrics and /healthz on this address")
	fs.StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "Optional settings file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <@channel | https://t.me/channel>\n\n", appName)
		fs.PrintDefaults()
	}

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return options{}, err
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
	if opts.version {
		return opts, nil
	}
	if opts.limit < 0 {
		return options{}, fmt.Errorf("-limit must not be negative, got %d", opts.limit)
	}
	switch len(positional) {
	case 0:
		fs.Usage()
		return options{}, errors.New("channel identifier is required")
	case 1:
	default:
		return options{}, fmt.Errorf("expected one channel identifier, got %d: %s", len(positional), strings.Join(positional, " "))
	}
	opts.identifier = strings.TrimSpace(positional[0])
	if opts.identifier == "" {
		return options{}, errors.New("channel identifier is required")
	}
	return opts, nil
}

func reportError(ctx context.Context, stderr io.Writer, err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		fmt.Fprintln(stderr, "\nInterrupted by user")
		return exitInterrupted
	}
	fmt.Fprintln(stderr, domain.Classify(err).Render())
	return exitError
}
