package main

import (
	"context"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/pkg/llmfactory"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/react"
	"github.com/effective-security/mcpagent/registry"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "cmd")

// app holds the flags and the streams of the shell.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	servers   string
	llmConfig string
	model     string
	envFile   string
	maxTurns  int
	debug     bool
	verbose   bool
	trace     bool
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		in:     in,
		out:    out,
		errOut: errOut,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "mcpagent",
		Short: "ReAct agent over MCP tool providers",
		Long: `mcpagent answers questions with a language model that calls tools
exposed by MCP providers. Providers are started as subprocesses from the
servers configuration file and are stopped on exit.

The model is configured by --llm-config, or by OPENAI_API_KEY, BASE_URL
and MODEL_NAME environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnv(a.envFile); err != nil {
				return err
			}
			a.setupLogging()
			return nil
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context())
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.servers, "servers", "servers.json", "servers configuration file, JSON or YAML")
	flags.StringVar(&a.llmConfig, "llm-config", "", "LLM providers configuration file, YAML, JSON or TOML")
	flags.StringVar(&a.model, "model", "", "model name, the default model of the provider if empty")
	flags.StringVar(&a.envFile, "env-file", ".env", "environment file, ignored if missing")
	flags.IntVar(&a.maxTurns, "max-turns", react.DefaultMaxTurns, "maximum model calls per question")
	flags.BoolVar(&a.debug, "debug", false, "enable debug logs")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "print model replies and tool calls")
	flags.BoolVar(&a.trace, "trace", false, "print statistics of each question to stderr")

	root.AddCommand(
		newChatCmd(a),
		newAskCmd(a),
		newToolsCmd(a),
	)
	return root
}

// loadEnv loads variables from the file, existing variables are kept.
func loadEnv(file string) error {
	if file == "" {
		return nil
	}
	err := godotenv.Load(file)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "unable to load %s", file)
	}
	return nil
}

func (a *app) setupLogging() {
	xlog.SetFormatter(xlog.NewStringFormatter(a.errOut))
	if a.debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.WARNING)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// connect starts the providers. The returned registry must be shut down
// by the caller, also when err is not nil.
func (a *app) connect(ctx context.Context) (*registry.Registry, error) {
	cfg, err := registry.LoadServersConfig(a.servers)
	if err != nil {
		return nil, err
	}
	reg := registry.New()
	if err = reg.Connect(ctx, cfg); err != nil {
		return reg, err
	}
	logger.KV(xlog.DEBUG,
		"status", "connected",
		"servers", reg.Connections(),
		"tools", len(reg.ListTools()),
	)
	return reg, nil
}

func (a *app) shutdown(reg *registry.Registry) {
	if reg == nil {
		return
	}
	if err := reg.Shutdown(context.Background()); err != nil {
		logger.KV(xlog.WARNING, "reason", "shutdown", "err", err.Error())
	}
}

func (a *app) newModel() (llms.Model, error) {
	var f llmfactory.Factory
	if a.llmConfig != "" {
		var err error
		f, err = llmfactory.Load(a.llmConfig)
		if err != nil {
			return nil, err
		}
	} else {
		cfg := llmfactory.FromEnv()
		if a.model != "" {
			env := cfg.Providers[0]
			env.DefaultModel = a.model
			env.AvailableModels = []string{a.model}
		}
		f = llmfactory.New(cfg)
	}

	if a.model != "" {
		return f.ModelByName(a.model)
	}
	return f.DefaultModel()
}

func (a *app) newDriver(reg react.Registry) (*react.Driver, error) {
	model, err := a.newModel()
	if err != nil {
		return nil, err
	}

	cb := callbacks.NewFanout(callbacks.NewPackageLogger(logger))
	if a.verbose {
		cb.Add(callbacks.NewPrinter(a.out, callbacks.ModeVerbose))
	}
	if a.trace {
		cb.Add(newReporter(a.errOut))
	}

	opts := []react.Option{
		react.WithMaxTurns(a.maxTurns),
		react.WithCallback(cb),
	}
	if a.model != "" {
		opts = append(opts, react.WithModelName(a.model))
	}
	return react.New(model, reg, opts...)
}
