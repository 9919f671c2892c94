// Package promstack provides a public Go API for generating Prometheus
// monitoring stack bundles.
//
// This package exposes the bundle assembly used by the promstack CLI as a
// library, allowing programmatic use without the CLI.
//
// Basic usage:
//
//	result, err := promstack.Generate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(string(result.Files["create.sh"]))
//
// With options:
//
//	result, err := promstack.Generate(ctx,
//	    promstack.WithProvider("google/gke"),
//	    promstack.WithStack(map[string]interface{}{"namespace": "observability"}),
//	    promstack.WithValues("enable.grafana=false"),
//	)
package promstack

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hupe1980/promstack/internal/bundle"
	"github.com/hupe1980/promstack/internal/config"
	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/logging"
	"github.com/hupe1980/promstack/internal/option"
	"github.com/hupe1980/promstack/internal/output"
)

// Option configures Generate.
type Option func(*options)

type options struct {
	projectFile string
	provider    string
	root        map[string]interface{}
	stack       map[string]interface{}
	values      []string
	renames     map[string]string
	prefix      string
	namespace   *bool
	setContext  *bool
	storage     *bool
	extra       []string
	outputDir   string
	logger      *slog.Logger
}

// WithProjectFile loads the project from a promstack.yaml file. The other
// options are applied on top of it.
func WithProjectFile(path string) Option { return func(o *options) { o.projectFile = path } }

// WithProvider sets the target provider, for example "google/gke".
func WithProvider(p string) Option { return func(o *options) { o.provider = p } }

// WithRoot sets the root option tree shared by all builders.
func WithRoot(root map[string]interface{}) Option { return func(o *options) { o.root = root } }

// WithStack sets the stack options.
func WithStack(stack map[string]interface{}) Option { return func(o *options) { o.stack = stack } }

// WithValues sets individual stack options (key=value, Helm --set syntax).
func WithValues(values ...string) Option {
	return func(o *options) { o.values = append(o.values, values...) }
}

// WithRenames replaces metadata.name of objects by logical name.
func WithRenames(renames map[string]string) Option { return func(o *options) { o.renames = renames } }

// WithPrefix sets the manifest file name prefix.
func WithPrefix(prefix string) Option { return func(o *options) { o.prefix = prefix } }

// WithNamespaceFile adds a file creating the stack namespace.
func WithNamespaceFile(enabled bool) Option { return func(o *options) { o.namespace = &enabled } }

// WithSetContext makes create.sh switch the current kubectl context to the
// stack namespace.
func WithSetContext(enabled bool) Option { return func(o *options) { o.setContext = &enabled } }

// WithStorage controls whether the storage group is part of the bundle.
func WithStorage(enabled bool) Option { return func(o *options) { o.storage = &enabled } }

// WithExtraFiles adds free-standing manifest files to the bundle.
func WithExtraFiles(paths ...string) Option {
	return func(o *options) { o.extra = append(o.extra, paths...) }
}

// WithOutputDir makes the script refer to files under dir. By default the
// script refers to bare file names.
func WithOutputDir(dir string) Option { return func(o *options) { o.outputDir = dir } }

// WithLogger sets a custom logger. By default logs are discarded.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// Result is a rendered bundle.
type Result struct {
	// Names lists the files in render order; create.sh comes first.
	Names []string

	// Files maps file names to their content.
	Files map[string][]byte

	// ObjectCount is the number of Kubernetes objects in the bundle.
	ObjectCount int

	// Warnings holds non-fatal validation findings.
	Warnings []string
}

// Generate assembles and renders a bundle in memory.
func Generate(ctx context.Context, opts ...Option) (*Result, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = logging.Discard()
	}

	proj, err := o.project()
	if err != nil {
		return nil, err
	}

	b, err := bundle.Assemble(ctx, proj, bundle.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	validation := output.ValidateObjects(b.Objects())
	if validation.HasErrors() {
		return nil, errors.New(output.FormatValidationResult(validation))
	}

	mem := output.NewMemoryDriver()

	var d output.Driver = mem
	if o.outputDir != "" {
		d = dirPaths{MemoryDriver: mem, dir: output.NewDirectoryDriver(o.outputDir)}
	}

	if err := b.Output(d); err != nil {
		return nil, err
	}

	result := &Result{
		Names:       mem.Names(),
		Files:       mem.Files(),
		ObjectCount: len(b.Objects()),
	}

	for _, w := range validation.Warnings() {
		result.Warnings = append(result.Warnings, w.Error())
	}

	return result, nil
}

func (o *options) project() (*config.Project, error) {
	proj := config.NewProject()

	if o.projectFile != "" {
		var err error
		if proj, err = config.LoadProject(o.projectFile); err != nil {
			return nil, err
		}
	}

	if o.provider != "" {
		proj.Provider = o.provider
	}

	if o.root != nil {
		proj.Root = option.Tree(o.root)
	}

	if o.stack != nil {
		proj.Stack = option.Tree(o.stack)
	}

	if o.renames != nil {
		proj.Renames = k8s.RenameTable(o.renames)
	}

	if o.prefix != "" {
		proj.Bundle.Prefix = o.prefix
	}

	if o.namespace != nil {
		proj.Bundle.Namespace = *o.namespace
	}

	if o.setContext != nil {
		proj.Bundle.SetContext = *o.setContext
	}

	if o.storage != nil {
		proj.Bundle.Storage = *o.storage
	}

	proj.Extra = append(proj.Extra, o.extra...)

	if err := proj.ApplySets(o.values); err != nil {
		return nil, err
	}

	return proj, nil
}

// dirPaths renders into memory while the script refers to files under dir.
type dirPaths struct {
	*output.MemoryDriver
	dir *output.DirectoryDriver
}

func (d dirPaths) Path(f output.File) string { return d.dir.Path(f) }
