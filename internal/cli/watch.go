package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/promstack/internal/config"
	"github.com/hupe1980/promstack/internal/logging"
	"github.com/hupe1980/promstack/internal/output"
	"github.com/hupe1980/promstack/internal/watch"
)

type watchOptions struct {
	projectOptions

	outputDir string
	debounce  time.Duration
	validate  bool
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate the bundle whenever the project changes",
		Long: `Watch monitors the project directory and the extra manifests it lists
and regenerates the bundle into --output-dir after every change.

File changes are debounced to avoid rapid re-runs. Each regeneration
reports the number of files and objects and which objects were added,
removed or modified since the previous run. Use --validate (enabled by
default) to check the generated objects after each run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd, opts)
		},
	}

	registerProjectFlags(cmd, &opts.projectOptions)

	f := cmd.Flags()
	f.StringVarP(&opts.outputDir, "output-dir", "o", "out", "output directory")
	f.DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "debounce interval for file changes")
	f.BoolVar(&opts.validate, "validate", true, "validate the objects after each generation")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts *watchOptions) error {
	logger := logging.FromContext(ctx)
	cfg := config.FromContext(ctx)

	proj, err := loadProject(cfg, &opts.projectOptions)
	if err != nil {
		return err
	}

	runFn := func(fnCtx context.Context) (*watch.RunResult, error) {
		_, b, err := assemble(fnCtx, &opts.projectOptions)
		if err != nil {
			return nil, err
		}

		d := output.NewDirectoryDriver(opts.outputDir, output.WithLogger(logger))
		if err := b.Output(d); err != nil {
			return nil, fmt.Errorf("writing bundle: %w", err)
		}

		files := []string{b.Script().Name()}
		for _, h := range b.ManifestFiles() {
			files = append(files, h.Name())
		}

		return &watch.RunResult{
			Files:     files,
			Objects:   b.Objects(),
			OutputDir: opts.outputDir,
		}, nil
	}

	var validateFn watch.ValidateFunc
	if opts.validate {
		validateFn = func(_ context.Context, result *watch.RunResult) error {
			v := output.ValidateObjects(result.Objects)
			if v.HasErrors() {
				return fmt.Errorf("%d error(s): %v", len(v.Errors()), v.Errors()[0].Error())
			}

			return nil
		}
	}

	projectDir := proj.Dir
	if projectDir == "" {
		projectDir = filepath.Dir(cfg.Project)
	}

	watchOpts := watch.DefaultOptions()
	watchOpts.ProjectDir = projectDir
	watchOpts.ExtraFiles = outsideDir(projectDir, proj.ExtraPaths())
	watchOpts.IgnoreDirs = []string{opts.outputDir}
	watchOpts.Debounce = opts.debounce
	watchOpts.ValidateFn = validateFn
	watchOpts.Logger = logger
	watchOpts.Out = cmd.ErrOrStderr()

	return watch.Run(ctx, watchOpts, runFn)
}

// outsideDir returns the paths that do not live under dir; files inside it
// are covered by the recursive directory watch.
func outsideDir(dir string, paths []string) []string {
	var out []string

	for _, p := range paths {
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			out = append(out, p)
		}
	}

	return out
}
