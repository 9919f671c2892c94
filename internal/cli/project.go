package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/promstack/internal/bundle"
	"github.com/hupe1980/promstack/internal/config"
	"github.com/hupe1980/promstack/internal/logging"
)

// projectOptions are the flags shared by every command that assembles a
// bundle.
type projectOptions struct {
	sets []string
}

// registerProjectFlags adds the project flags. The project file itself is
// read through the configuration so PROMSTACK_PROJECT and the config file
// can name it too.
func registerProjectFlags(cmd *cobra.Command, opts *projectOptions) {
	f := cmd.Flags()
	f.StringP("project", "p", config.DefaultProjectFile, "project file")
	f.StringArrayVar(&opts.sets, "set", nil, "set stack options (key=value, may be repeated)")
}

// loadProject reads the project file. A missing default project file
// yields an empty project, so the stack defaults can be generated without
// any file at all.
func loadProject(cfg *config.Config, opts *projectOptions) (*config.Project, error) {
	proj, err := config.LoadProject(cfg.Project)

	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && cfg.DefaultProject():
		proj = config.NewProject()

		if wd, wdErr := os.Getwd(); wdErr == nil {
			proj.Dir = wd
		}
	default:
		return nil, &ExitError{Code: ExitUsage, Err: err}
	}

	if err := proj.ApplySets(opts.sets); err != nil {
		return nil, &ExitError{Code: ExitUsage, Err: err}
	}

	return proj, nil
}

// assemble loads the project and builds its bundle.
func assemble(ctx context.Context, opts *projectOptions) (*config.Project, *bundle.Bundle, error) {
	cfg := config.FromContext(ctx)

	proj, err := loadProject(cfg, opts)
	if err != nil {
		return nil, nil, err
	}

	b, err := bundle.Assemble(ctx, proj,
		bundle.WithLogger(logging.FromContext(ctx)),
		bundle.WithDefaultProvider(cfg.Provider),
	)
	if err != nil {
		return nil, nil, &ExitError{Code: ExitGeneric, Err: fmt.Errorf("assembling bundle: %w", err)}
	}

	return proj, b, nil
}
