package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/promstack/internal/builder"
	"github.com/hupe1980/promstack/internal/bundle"
	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/output"
)

type inspectOptions struct {
	projectOptions

	showGroups     bool
	showObjects    bool
	showValidation bool
	format         string
}

func newInspectCommand() *cobra.Command {
	opts := &inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect the bundle without writing it",
		Long: `Inspect builds the bundle in memory and shows the build groups with
their prerequisites, the files and objects that would be written, and the
findings of a structural validation of the generated objects.

Exit codes:
  0  Success (warnings allowed)
  1  Error or validation errors found
  2  Invalid arguments or configuration`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd.Context(), cmd, opts)
		},
	}

	registerProjectFlags(cmd, &opts.projectOptions)

	f := cmd.Flags()
	f.BoolVar(&opts.showGroups, "show-groups", false, "show only build groups")
	f.BoolVar(&opts.showObjects, "show-objects", false, "show only files and objects")
	f.BoolVar(&opts.showValidation, "show-validation", false, "show only validation findings")
	f.StringVar(&opts.format, "format", "table", "output format: table, json, yaml")

	return cmd
}

// inspectResult is the structured output of the inspect command.
type inspectResult struct {
	Basename  string        `json:"basename"`
	Namespace string        `json:"namespace"`
	Provider  string        `json:"provider"`
	Groups    []groupInfo   `json:"groups"`
	Files     []fileInfo    `json:"files"`
	Objects   []objectInfo  `json:"objects"`
	Findings  []findingInfo `json:"findings,omitempty"`
}

type groupInfo struct {
	Name     string   `json:"name"`
	Requires []string `json:"requires,omitempty"`
	Built    bool     `json:"built"`
	Objects  int      `json:"objects"`
}

type fileInfo struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Objects int    `json:"objects"`
}

type objectInfo struct {
	File        string `json:"file"`
	Group       string `json:"group,omitempty"`
	LogicalName string `json:"logicalName"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Namespace   string `json:"namespace,omitempty"`
	Category    string `json:"category"`
}

type findingInfo struct {
	Severity string `json:"severity"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func runInspect(ctx context.Context, cmd *cobra.Command, opts *inspectOptions) error {
	switch opts.format {
	case "table", "json", "yaml":
	default:
		return &ExitError{Code: ExitUsage, Err: fmt.Errorf("unknown format %q: expected table, json, yaml", opts.format)}
	}

	_, b, err := assemble(ctx, &opts.projectOptions)
	if err != nil {
		return err
	}

	result, validation, err := buildInspectResult(b)
	if err != nil {
		return &ExitError{Code: ExitGeneric, Err: err}
	}

	w := cmd.OutOrStdout()

	switch opts.format {
	case "json":
		err = renderJSON(w, result)
	case "yaml":
		err = renderYAML(w, result)
	default:
		renderTable(w, result, validation, opts)
	}

	if err != nil {
		return &ExitError{Code: ExitGeneric, Err: err}
	}

	if validation.HasErrors() {
		return &ExitError{Code: ExitGeneric, Err: fmt.Errorf("validation failed with %d error(s)", len(validation.Errors()))}
	}

	return nil
}

func buildInspectResult(b *bundle.Bundle) (inspectResult, *output.ValidationResult, error) {
	stack := b.Stack()
	state := stack.State()

	result := inspectResult{
		Basename:  stack.Basename(),
		Namespace: stack.Namespace(),
		Provider:  stack.Provider().String(),
	}

	groupOf := make(map[string]builder.Group)

	for _, g := range stack.Groups() {
		info := groupInfo{Name: string(g), Built: state.Built(g)}

		requires, err := stack.Requires(g)
		if err != nil {
			return result, nil, err
		}

		for _, r := range requires {
			info.Requires = append(info.Requires, string(r))
		}

		if info.Built {
			objs, err := stack.Build(g)
			if err != nil {
				return result, nil, err
			}

			info.Objects = len(objs)

			for _, obj := range objs {
				groupOf[obj.LogicalName()] = g
			}
		}

		result.Groups = append(result.Groups, info)
	}

	result.Files = append(result.Files, fileInfo{Name: b.Script().Name(), Kind: b.Script().Kind().String()})

	for _, h := range b.ManifestFiles() {
		objs := b.FileObjects(h)
		result.Files = append(result.Files, fileInfo{Name: h.Name(), Kind: h.Kind().String(), Objects: len(objs)})

		for _, obj := range objs {
			result.Objects = append(result.Objects, objectInfo{
				File:        h.Name(),
				Group:       groupName(obj, groupOf),
				LogicalName: obj.LogicalName(),
				Kind:        obj.Kind(),
				Name:        obj.Name(),
				Namespace:   obj.Namespace(),
				Category:    k8s.Category(obj.GVK()),
			})
		}
	}

	validation := output.ValidateObjects(b.Objects())
	for _, f := range validation.Findings {
		result.Findings = append(result.Findings, findingInfo{
			Severity: f.Severity.String(),
			Field:    f.Field,
			Message:  f.Message,
		})
	}

	return result, validation, nil
}

// groupName returns the build group of a stack object, or "" for objects
// that do not come from the stack builder.
func groupName(obj *k8s.Object, groupOf map[string]builder.Group) string {
	if obj.Source() != bundle.SourceExtra && obj.Source() != bundle.SourceBundle {
		return string(groupOf[obj.LogicalName()])
	}

	return ""
}

func renderJSON(w io.Writer, result inspectResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(result)
}

func renderYAML(w io.Writer, result inspectResult) error {
	data, err := sigsyaml.Marshal(result)
	if err != nil {
		return err
	}

	_, err = w.Write(data)

	return err
}

func renderTable(w io.Writer, result inspectResult, validation *output.ValidationResult, opts *inspectOptions) {
	showAll := !opts.showGroups && !opts.showObjects && !opts.showValidation

	if showAll {
		_, _ = fmt.Fprintf(w, "\n=== Stack: %s ===\n", result.Basename)
		_, _ = fmt.Fprintf(w, "Namespace: %s\n", result.Namespace)
		_, _ = fmt.Fprintf(w, "Provider:  %s\n", result.Provider)
	}

	if showAll || opts.showGroups {
		printGroups(w, result)
	}

	if showAll || opts.showObjects {
		printFiles(w, result)
		printObjects(w, result)
	}

	if showAll || opts.showValidation {
		_, _ = fmt.Fprintf(w, "\n--- Validation ---\n%s\n", output.FormatValidationResult(validation))
	}
}

func printGroups(w io.Writer, result inspectResult) {
	_, _ = fmt.Fprintf(w, "\n--- Build Groups (%d) ---\n", len(result.Groups))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "GROUP\tREQUIRES\tBUILT\tOBJECTS")

	for _, g := range result.Groups {
		requires := strings.Join(g.Requires, ",")
		if requires == "" {
			requires = "-"
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%d\n", g.Name, requires, g.Built, g.Objects)
	}

	_ = tw.Flush()
}

func printFiles(w io.Writer, result inspectResult) {
	_, _ = fmt.Fprintf(w, "\n--- Files (%d) ---\n", len(result.Files))

	for i, f := range result.Files {
		_, _ = fmt.Fprintf(w, "  %d. %s (%s, %d objects)\n", i+1, f.Name, f.Kind, f.Objects)
	}
}

func printObjects(w io.Writer, result inspectResult) {
	_, _ = fmt.Fprintf(w, "\n--- Objects (%d) ---\n", len(result.Objects))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "LOGICAL NAME\tKIND\tNAME\tNAMESPACE\tGROUP\tFILE")

	for _, o := range result.Objects {
		ns := o.Namespace
		if ns == "" {
			ns = "-"
		}

		group := o.Group
		if group == "" {
			group = "-"
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", o.LogicalName, o.Kind, o.Name, ns, group, o.File)
	}

	_ = tw.Flush()
}
