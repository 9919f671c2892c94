// Package bundle assembles a complete deployment bundle from a project:
// the Prometheus stack manifests split into files, free-standing extra
// manifests and a create.sh script that applies them in order.
package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/hupe1980/promstack/internal/builder"
	"github.com/hupe1980/promstack/internal/config"
	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/k8s/parser"
	"github.com/hupe1980/promstack/internal/logging"
	"github.com/hupe1980/promstack/internal/option"
	"github.com/hupe1980/promstack/internal/output"
	"github.com/hupe1980/promstack/internal/prometheusstack"
)

// ScriptName is the base name of the bootstrap script.
const ScriptName = "create"

// Source tags of objects that do not come from the stack builder.
const (
	SourceBundle = "bundle"
	SourceExtra  = "extra"
)

// LogicalNamespace is the logical name of the generated Namespace object.
const LogicalNamespace = "namespace"

// Option configures Assemble.
type Option func(*assembler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *assembler) {
		a.logger = logger
	}
}

// WithDefaultProvider sets the provider used when the project names none.
func WithDefaultProvider(p string) Option {
	return func(a *assembler) {
		a.defaultProvider = p
	}
}

type assembler struct {
	logger          *slog.Logger
	defaultProvider string
}

// Bundle is an assembled, not yet rendered, deployment bundle.
type Bundle struct {
	project *output.Project
	stack   *prometheusstack.Stack
	files   []output.FileHandle
	script  output.FileHandle
}

// Stack returns the stack builder the bundle was built from.
func (b *Bundle) Stack() *prometheusstack.Stack { return b.stack }

// Script returns the handle of the bootstrap script.
func (b *Bundle) Script() output.FileHandle { return b.script }

// ManifestFiles returns the Kubernetes file handles in apply order.
func (b *Bundle) ManifestFiles() []output.FileHandle {
	return append([]output.FileHandle(nil), b.files...)
}

// FileObjects returns the objects of one manifest file.
func (b *Bundle) FileObjects(h output.FileHandle) []*k8s.Object {
	return b.project.Objects(h)
}

// Objects returns every object of the bundle in apply order.
func (b *Bundle) Objects() []*k8s.Object {
	var objs []*k8s.Object
	for _, h := range b.files {
		objs = append(objs, b.project.Objects(h)...)
	}

	return objs
}

// Output renders the bundle through d. A bundle can be output once.
func (b *Bundle) Output(d output.Driver) error {
	return b.project.Output(d)
}

// Assemble builds the stack described by proj and lays it out into files.
func Assemble(ctx context.Context, proj *config.Project, opts ...Option) (*Bundle, error) {
	a := &assembler{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}

	if err := proj.Validate(); err != nil {
		return nil, err
	}

	p, err := proj.ResolveProvider(a.defaultProvider)
	if err != nil {
		return nil, err
	}

	root, err := option.NewResolver(proj.Root)
	if err != nil {
		return nil, fmt.Errorf("root options: %w", err)
	}

	stack, err := prometheusstack.New(p, root, proj.Stack, builder.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}

	if err := stack.RenameObjects(proj.Renames); err != nil {
		return nil, err
	}

	groups := []builder.Group{
		prometheusstack.BuildAccessControl,
		prometheusstack.BuildConfig,
		prometheusstack.BuildService,
	}
	if proj.Bundle.Storage {
		groups = append(groups, prometheusstack.BuildStorage)
	}

	if err := stack.EnsureBuildNames(groups...); err != nil {
		return nil, err
	}

	a.logger.Debug("built stack", logging.Provider(p.String()), logging.Namespace(stack.Namespace()))

	return a.layout(ctx, proj, stack)
}

func (a *assembler) layout(ctx context.Context, proj *config.Project, stack *prometheusstack.Stack) (*Bundle, error) {
	b := &Bundle{
		project: output.NewProject(output.WithProjectLogger(a.logger)),
		stack:   stack,
	}

	script, err := b.project.NewFile(output.KindShellScript, ScriptName)
	if err != nil {
		return nil, err
	}

	b.script = script

	if err := b.project.AppendLines(script, output.Literal("set -e")); err != nil {
		return nil, err
	}

	prefix := proj.Bundle.Prefix

	if proj.Bundle.Namespace {
		ns, err := namespaceObject(stack)
		if err != nil {
			return nil, err
		}

		if err := b.addFile(prefix+"-namespace", ns); err != nil {
			return nil, err
		}
	}

	if proj.Bundle.SetContext {
		if err := b.project.AppendLines(script, output.SetContextNamespace(stack.Namespace())); err != nil {
			return nil, err
		}
	}

	cfg, err := stack.Build(prometheusstack.BuildAccessControl, prometheusstack.BuildConfig)
	if err != nil {
		return nil, err
	}

	if err := b.addFile(prefix+"-config", cfg...); err != nil {
		return nil, err
	}

	if proj.Bundle.Storage {
		storage, err := stack.Build(prometheusstack.BuildStorage)
		if err != nil {
			return nil, err
		}

		if len(storage) > 0 {
			if err := b.addFile(prefix+"-storage", storage...); err != nil {
				return nil, err
			}
		}
	}

	svc, err := stack.Build(prometheusstack.BuildService)
	if err != nil {
		return nil, err
	}

	if err := b.addFile(prefix, svc...); err != nil {
		return nil, err
	}

	extra, err := loadExtra(ctx, proj.ExtraPaths(), stack.Namespace())
	if err != nil {
		return nil, err
	}

	if len(extra) > 0 {
		if err := b.addFile(prefix+"-extra", extra...); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// addFile creates a Kubernetes file holding objs and appends its apply line
// to the script.
func (b *Bundle) addFile(name string, objs ...*k8s.Object) error {
	h, err := b.project.NewFile(output.KindKubernetes, name)
	if err != nil {
		return err
	}

	if err := b.project.AppendLines(b.script, output.Apply(h)); err != nil {
		return err
	}

	if err := b.project.AppendObjects(h, objs...); err != nil {
		return err
	}

	b.files = append(b.files, h)

	return nil
}

func namespaceObject(stack *prometheusstack.Stack) (*k8s.Object, error) {
	ns := &corev1.Namespace{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
		ObjectMeta: metav1.ObjectMeta{
			Name: stack.Namespace(),
			Labels: map[string]string{
				prometheusstack.LabelManagedBy: prometheusstack.ManagedBy,
			},
		},
	}

	return k8s.FromTyped(ns, LogicalNamespace, SourceBundle, stack.Basename())
}

// loadExtra parses the extra manifest files. Namespaced objects without a
// namespace are placed in ns.
func loadExtra(ctx context.Context, paths []string, ns string) ([]*k8s.Object, error) {
	var objs []*k8s.Object

	seen := make(map[string]string)

	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the project file
		if err != nil {
			return nil, fmt.Errorf("reading extra manifest: %w", err)
		}

		p := parser.NewParser(parser.WithSource(SourceExtra), parser.WithInstance(filepath.Base(path)))

		parsed, err := p.Parse(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		for _, obj := range parsed {
			if prev, dup := seen[obj.LogicalName()]; dup {
				return nil, fmt.Errorf("%s: %s already defined in %s", path, obj.QualifiedName(), prev)
			}

			seen[obj.LogicalName()] = path
			objs = append(objs, obj.WithNamespace(ns))
		}
	}

	return objs, nil
}
