package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/promstack/internal/config"
	"github.com/hupe1980/promstack/internal/logging"
	"github.com/hupe1980/promstack/internal/output"
)

type generateOptions struct {
	projectOptions

	outputDir     string
	pathPrefix    string
	checksums     bool
	kustomization bool
}

func newGenerateCommand() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the monitoring stack bundle",
		Long: `Generate builds the monitoring stack described by the project file and
writes the bundle: one manifest file per build group layer plus create.sh,
which applies them in order.

The output driver decides where files go:
  directory  write files under --output-dir (default)
  print      print every file to stdout between banners

Exit codes:
  0  Success
  1  Error
  2  Invalid arguments or configuration
  6  Writing the bundle failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd.Context(), cmd, opts)
		},
	}

	registerProjectFlags(cmd, &opts.projectOptions)

	f := cmd.Flags()
	f.String("driver", config.DriverDirectory, "output driver: directory, print")
	f.StringVarP(&opts.outputDir, "output-dir", "o", "out", "output directory of the directory driver")
	f.StringVar(&opts.pathPrefix, "path-prefix", "", "directory the script refers to files by (default: --output-dir)")
	f.BoolVar(&opts.checksums, "checksums", false, "write checksums.txt next to the bundle")
	f.BoolVar(&opts.kustomization, "kustomization", false, "write kustomization.yaml listing the manifest files")

	return cmd
}

func runGenerate(ctx context.Context, cmd *cobra.Command, opts *generateOptions) error {
	logger := logging.FromContext(ctx)
	cfg := config.FromContext(ctx)

	_, b, err := assemble(ctx, &opts.projectOptions)
	if err != nil {
		return err
	}

	dirOpts := []output.DirectoryOption{
		output.WithLogger(logger),
		output.WithChecksums(opts.checksums),
		output.WithKustomization(opts.kustomization),
	}

	if cmd.Flags().Changed("path-prefix") {
		dirOpts = append(dirOpts, output.WithPathPrefix(opts.pathPrefix))
	}

	driver, err := output.DefaultRegistry().Driver(cfg.Driver, output.DriverConfig{
		Target:    opts.outputDir,
		Stdout:    cmd.OutOrStdout(),
		Directory: dirOpts,
	})
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	if err := b.Output(driver); err != nil {
		return &ExitError{Code: ExitOutput, Err: fmt.Errorf("writing bundle: %w", err)}
	}

	logger.Info("bundle generated",
		slog.String("driver", cfg.Driver),
		slog.Int("files", len(b.ManifestFiles())+1),
		slog.Int("objects", len(b.Objects())),
	)

	if cfg.Driver == config.DriverDirectory {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "bundle written to %s\n", opts.outputDir)
	}

	return nil
}
