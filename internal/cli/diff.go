package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/promstack/internal/config"
	"github.com/hupe1980/promstack/internal/output"
	"github.com/hupe1980/promstack/internal/plan"
)

type diffOptions struct {
	projectOptions

	outputDir string
	format    string
	context   int
}

func newDiffCommand() *cobra.Command {
	opts := &diffOptions{}

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare the generated bundle with an existing bundle directory",
		Long: `Diff renders the bundle in memory and compares it with the files in
--output-dir: a unified diff per changed file followed by a summary of
added, removed and modified files and objects. Nothing is written.

Exit codes:
  0  No differences
  1  Error
  2  Invalid arguments or configuration
  8  Differences found`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiff(cmd.Context(), cmd, opts)
		},
	}

	registerProjectFlags(cmd, &opts.projectOptions)

	f := cmd.Flags()
	f.StringVarP(&opts.outputDir, "output-dir", "o", "out", "existing bundle directory")
	f.StringVar(&opts.format, "format", "unified", "output format: unified, summary, json")
	f.IntVar(&opts.context, "context", 3, "lines of context in unified diffs")

	return cmd
}

func runDiff(ctx context.Context, cmd *cobra.Command, opts *diffOptions) error {
	switch opts.format {
	case "unified", "summary", "json":
	default:
		return &ExitError{Code: ExitUsage, Err: fmt.Errorf("unknown format %q: expected unified, summary, json", opts.format)}
	}

	_, b, err := assemble(ctx, &opts.projectOptions)
	if err != nil {
		return err
	}

	// The script refers to files by their path under the output directory,
	// as generate writes it.
	mem := output.NewMemoryDriver()
	if err := b.Output(pathDriver{MemoryDriver: mem, dir: opts.outputDir}); err != nil {
		return &ExitError{Code: ExitGeneric, Err: fmt.Errorf("rendering bundle: %w", err)}
	}

	diffOpts := plan.DefaultDiffOptions()
	diffOpts.Context = opts.context

	result, err := plan.Compare(ctx, opts.outputDir, mem, diffOpts)
	if err != nil {
		return &ExitError{Code: ExitGeneric, Err: err}
	}

	w := cmd.OutOrStdout()

	switch opts.format {
	case "json":
		if err := plan.FormatJSON(w, result); err != nil {
			return &ExitError{Code: ExitGeneric, Err: fmt.Errorf("formatting JSON: %w", err)}
		}
	case "summary":
		plan.FormatSummary(w, result)
	default:
		plan.FormatText(w, result, !config.FromContext(ctx).NoColor)
	}

	if result.HasChanges() {
		return &ExitError{
			Code: ExitChanges,
			Err:  fmt.Errorf("%d file(s) differ from %s", len(result.Files), opts.outputDir),
		}
	}

	return nil
}

// pathDriver renders into memory but resolves script paths like the
// directory driver would.
type pathDriver struct {
	*output.MemoryDriver
	dir string
}

func (d pathDriver) Path(f output.File) string {
	return output.NewDirectoryDriver(d.dir).Path(f)
}
