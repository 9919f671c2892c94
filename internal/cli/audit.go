package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/promstack/internal/audit"
	"github.com/hupe1980/promstack/internal/logging"
)

type auditOptions struct {
	projectOptions

	format        string
	failOn        string
	securityLevel string
	policyPaths   []string
	ignore        []string
}

func newAuditCommand() *cobra.Command {
	opts := &auditOptions{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run security and best-practice audits on the bundle",
		Long: `Audit builds the bundle in memory and examines every object against
the built-in rules (SEC-001 through SEC-013) and any custom policies
supplied via --policy.

Node-exporter needs host access by nature; use --ignore to suppress rules
that do not apply to a deployment.

Use --fail-on to set a severity threshold: the command exits with
code 9 if any finding meets or exceeds the threshold.

Output formats: table (default), json, sarif.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd.Context(), cmd, opts)
		},
	}

	registerProjectFlags(cmd, &opts.projectOptions)

	f := cmd.Flags()
	f.StringVar(&opts.format, "format", "table", "output format: table, json, sarif")
	f.StringVar(&opts.failOn, "fail-on", "", "fail with exit code 9 if findings >= severity (critical, high, medium, low, info)")
	f.StringVar(&opts.securityLevel, "security-level", "baseline", "Pod Security Standards level: none, baseline, restricted")
	f.StringArrayVar(&opts.policyPaths, "policy", nil, "custom policy YAML files (may be repeated)")
	f.StringSliceVar(&opts.ignore, "ignore", nil, "rule IDs to skip (comma separated)")

	return cmd
}

func runAudit(ctx context.Context, cmd *cobra.Command, opts *auditOptions) error {
	logger := logging.FromContext(ctx)

	formatter, err := audit.NewFormatter(opts.format)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	level, err := audit.ParseLevel(opts.securityLevel)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	var threshold audit.Severity
	if opts.failOn != "" {
		if threshold, err = audit.ParseSeverity(opts.failOn); err != nil {
			return &ExitError{Code: ExitUsage, Err: err}
		}
	}

	checks := audit.DefaultChecks(level)

	for _, path := range opts.policyPaths {
		pf, err := audit.LoadPolicyFile(path)
		if err != nil {
			return &ExitError{Code: ExitUsage, Err: err}
		}

		checks = append(checks, pf.Checks()...)

		logger.Debug("loaded audit policy", slog.String("path", path), slog.Int("rules", len(pf.Rules)))
	}

	_, b, err := assemble(ctx, &opts.projectOptions)
	if err != nil {
		return err
	}

	result := audit.New(checks, audit.WithIgnore(opts.ignore...)).Run(ctx, b.Objects())

	logger.Info("audit completed",
		slog.Int("objects", len(b.Objects())),
		slog.Int("findings", len(result.Findings)),
		slog.Int("ignoredRules", result.Ignored),
	)

	if err := formatter.Format(cmd.OutOrStdout(), result); err != nil {
		return &ExitError{Code: ExitGeneric, Err: fmt.Errorf("formatting results: %w", err)}
	}

	if opts.failOn != "" && !result.Passed(threshold) {
		return &ExitError{
			Code: ExitAudit,
			Err:  fmt.Errorf("audit failed: findings at or above %s severity", threshold),
		}
	}

	return nil
}
