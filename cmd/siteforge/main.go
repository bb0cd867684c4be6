package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/siteforge/internal/config"
	sferrors "git.home.luguber.info/inful/siteforge/internal/errors"
	"git.home.luguber.info/inful/siteforge/internal/pipeline"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"siteforge.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct{} `cmd:"" help:"Run the default pipeline: clean, asset processing, manifest generation"`

	Serve struct {
		Listen string `short:"l" help:"Preview listen address (overrides config)"`
	} `cmd:"" help:"Build the site and serve it locally, rebuilding on source changes"`

	Deploy struct {
		Environment string `arg:"" help:"Target environment: dev, staging, production, or promote"`
		From        string `help:"Promote: source environment" default:"staging"`
		To          string `help:"Promote: target environment" default:"production"`
	} `cmd:"" help:"Build with revisioning and publish to an environment"`

	Clean struct{} `cmd:"" help:"Remove the output directory"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch kctx.Command() {
	case "build":
		withApp(logger, func(a *app) error { return a.build(ctx) })
	case "serve":
		withApp(logger, func(a *app) error { return a.serve(ctx, CLI.Serve.Listen) })
	case "deploy <environment>":
		withApp(logger, func(a *app) error {
			if CLI.Deploy.Environment == "promote" {
				return a.promote(ctx, CLI.Deploy.From, CLI.Deploy.To)
			}
			return a.deploy(ctx, CLI.Deploy.Environment)
		})
	case "clean":
		withApp(logger, func(a *app) error { return a.clean() })
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", CLI.Config)
	default:
		logger.Error("Unknown command", "command", kctx.Command())
		os.Exit(1)
	}
}

// withApp loads configuration, builds the application wiring and runs one
// command, reporting the failing task to stderr on pipeline failures.
func withApp(logger *slog.Logger, run func(a *app) error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.close()

	if err := run(a); err != nil {
		var taskErr *pipeline.TaskExecutionError
		if errors.As(err, &taskErr) {
			fmt.Fprintf(os.Stderr, "task %s failed at step %d: %v\n", taskErr.Task, taskErr.Step, taskErr.Cause)
		} else {
			fmt.Fprintf(os.Stderr, "%s error: %v\n", sferrors.GetCategory(err), err)
		}
		os.Exit(1)
	}
}
