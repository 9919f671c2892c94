// Package cli implements the cobra command tree for promstack.
package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/promstack/internal/config"
	"github.com/hupe1980/promstack/internal/logging"
)

// Process exit codes.
const (
	ExitGeneric = 1
	ExitUsage   = 2
	ExitOutput  = 6
	ExitChanges = 8
	ExitAudit   = 9
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	cmd := NewRootCommand()

	if err := cmd.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}

		return ExitGeneric
	}

	return 0
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "promstack",
		Short: "Generate Prometheus monitoring stack bundles for Kubernetes",
		Long: `promstack generates the Kubernetes manifests and the bootstrap shell
script needed to deploy a monitoring stack: Prometheus, Grafana,
kube-state-metrics and node-exporter together with their access-control,
configuration and storage objects.

A project file (promstack.yaml) holds the stack options, a shared root
option tree, object renames and the bundle layout. promstack never talks
to a cluster; apply the bundle with the generated create.sh.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: ExitUsage, Err: err}
			}

			logger := logging.Setup(cfg, cmd.ErrOrStderr())

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("logFormat", cfg.LogFormat),
				slog.String("provider", cfg.Provider),
				slog.String("configFile", cfg.ConfigFile),
			)

			return nil
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .promstack.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")
	pf.String("provider", "", "default target platform/service when the project names none (e.g. google/gke)")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Err: err}
	})

	// Register subcommands.
	cmd.AddCommand(
		newVersionCommand(),
		newGenerateCommand(),
		newInspectCommand(),
		newDiffCommand(),
		newWatchCommand(),
		newAuditCommand(),
		newCompletionCommand(),
	)

	registerFlagCompletions(cmd)

	return cmd
}
