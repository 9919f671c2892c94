package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/promstack/internal/prometheusstack"
	"github.com/hupe1980/promstack/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		jsonOutput bool
		short      bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Display the version, git commit, build date, Go version and platform,
followed by the component images bundles use unless the project overrides
them under "container", with the version range each one must satisfy.`,
		Args: cobra.NoArgs,
		// Override parent PersistentPreRunE: version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetInfo()
			if !short {
				info = info.WithComponents(prometheusstack.DefaultImages(), prometheusstack.ImageConstraints())
			}

			w := cmd.OutOrStdout()

			if jsonOutput {
				j, err := info.JSON()
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(w, j)

				return err
			}

			if _, err := fmt.Fprintln(w, info.String()); err != nil {
				return err
			}

			return printComponents(w, info.Components)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output version info as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "omit the default component images")

	return cmd
}

func printComponents(w io.Writer, components []version.Component) error {
	if len(components) == 0 {
		return nil
	}

	_, _ = fmt.Fprintln(w, "\nDefault images:")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "  COMPONENT\tIMAGE\tREQUIRES")

	for _, c := range components {
		requires := c.Requires
		if requires == "" {
			requires = "-"
		}

		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.Name, c.Image, requires)
	}

	return tw.Flush()
}
