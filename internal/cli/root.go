// Package cli implements the librecur command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cyp0633/librecur/internal/config"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X ..."
var version = "0.1.0-dev"

// app is the state shared by every command of one invocation
type app struct {
	cfgFile string
	verbose bool

	// bindings maps flag names to config keys; a changed flag overrides the
	// config file and environment
	bindings map[string]string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	a := &app{bindings: map[string]string{}}

	root := &cobra.Command{
		Use:   "librecur",
		Short: "Recurring schedule server and toolkit",
		Long: `librecur stores recurrence schedules, previews their upcoming
occurrences and hands instances that are due for creation to a sink.

Start a server:
  librecur serve

Preview a rule without a server:
  librecur preview --rule '{"enabled":true,"frequency":"weekly"}'

Talk to a running server:
  librecur schedule list --url http://localhost:8080/api/ --user alice`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./librecur.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format: text or json")
	a.bind("log-level", "logging.level")
	a.bind("log-format", "logging.format")

	root.AddCommand(
		newServeCommand(a),
		newPreviewCommand(a),
		newExportCommand(a),
		newScheduleCommand(a),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) bind(flag, key string) {
	a.bindings[flag] = key
}

// init loads configuration and sets up logging before any command runs
func (a *app) init(cmd *cobra.Command) error {
	overrides := map[string]any{}
	for flag, key := range a.bindings {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}
	if a.verbose {
		overrides["logging.level"] = "debug"
	}

	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: a.cfgFile,
		Overrides:  overrides,
	})
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// no config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "librecur version %s\n", version)
		},
	}
}
