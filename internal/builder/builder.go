// Package builder is the engine that turns a resolved option tree and a
// provider into named groups of Kubernetes objects.
//
// Groups declare prerequisite groups. Building a group first builds its
// prerequisites (depth-first, each once); every group is generated at most
// once per Builder and later requests return the cached batch. A rename
// table maps logical object names to replacement names and must be set
// before the first build.
package builder

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/logging"
	"github.com/hupe1980/promstack/internal/option"
	"github.com/hupe1980/promstack/internal/provider"
)

// GenerateFunc produces the objects of one group. It reads options, the
// provider and object names from the builder.
type GenerateFunc func(b *Builder) ([]*k8s.Object, error)

// GroupSpec declares a build group.
type GroupSpec struct {
	Name     Group
	Requires []Group
	Generate GenerateFunc
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used for build diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// Builder generates grouped objects. A Builder is owned by a single caller
// and is not safe for concurrent use; the option resolver it reads from may
// be shared.
type Builder struct {
	name     string
	options  *option.Resolver
	provider provider.Provider
	logger   *slog.Logger

	specs        map[Group]GroupSpec
	order        []Group
	defaultNames map[string]string
	renames      k8s.RenameTable

	state   State
	cache   map[Group][]*k8s.Object
	emitted map[string]Group
}

// New creates a builder named name. The name is used as the source tag of
// generated objects.
func New(name string, options *option.Resolver, p provider.Provider, opts ...Option) *Builder {
	if options == nil {
		options = option.Empty()
	}

	b := &Builder{
		name:         name,
		options:      options,
		provider:     p,
		logger:       slog.Default(),
		specs:        make(map[Group]GroupSpec),
		defaultNames: make(map[string]string),
		renames:      k8s.RenameTable{},
		state:        State{},
		cache:        make(map[Group][]*k8s.Object),
		emitted:      make(map[string]Group),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.logger = logging.ForBuilder(b.logger, name)

	return b
}

// Name returns the builder name.
func (b *Builder) Name() string { return b.name }

// Options returns the option resolver.
func (b *Builder) Options() *option.Resolver { return b.options }

// Provider returns the provider descriptor.
func (b *Builder) Provider() provider.Provider { return b.provider }

// Register declares a group. Prerequisites are checked lazily when the group
// is built, so groups may be registered in any order.
func (b *Builder) Register(spec GroupSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("registering build group: empty name")
	}

	if spec.Generate == nil {
		return fmt.Errorf("registering build group %q: nil generator", spec.Name)
	}

	if _, exists := b.specs[spec.Name]; exists {
		return fmt.Errorf("registering build group %q: %w", spec.Name, ErrDuplicateGroup)
	}

	spec.Requires = slices.Clone(spec.Requires)
	b.specs[spec.Name] = spec
	b.order = append(b.order, spec.Name)

	return nil
}

// Groups returns the registered groups in registration order.
func (b *Builder) Groups() []Group {
	return slices.Clone(b.order)
}

// Requires returns the declared prerequisites of g.
func (b *Builder) Requires(g Group) ([]Group, error) {
	spec, ok := b.specs[g]
	if !ok {
		return nil, &UnknownGroupError{Group: g}
	}

	return slices.Clone(spec.Requires), nil
}

// Graph returns the prerequisite graph of the registered groups.
func (b *Builder) Graph() Graph {
	g := make(Graph, len(b.specs))
	for name, spec := range b.specs {
		g[name] = slices.Clone(spec.Requires)
	}

	return g
}

// SetDefaultNames sets the names objects get when no rename applies, keyed
// by logical name.
func (b *Builder) SetDefaultNames(names map[string]string) {
	maps.Copy(b.defaultNames, names)
}

// DefaultNames returns a copy of the default name table.
func (b *Builder) DefaultNames() map[string]string {
	return maps.Clone(b.defaultNames)
}

// ObjectName returns the metadata.name for a logical name: the rename table
// entry if present, else the default name, else the logical name itself.
// Generators use it for every cross-object reference so renames propagate
// into the wiring.
func (b *Builder) ObjectName(logicalName string) string {
	if name, ok := b.renames.Get(logicalName); ok {
		return name
	}

	if name, ok := b.defaultNames[logicalName]; ok {
		return name
	}

	return logicalName
}

// RenameObjects adds table to the builder's rename table. It fails with
// *AlreadyBuiltError once any group has been built.
func (b *Builder) RenameObjects(table k8s.RenameTable) error {
	if built := b.builtGroups(); len(built) > 0 {
		return &AlreadyBuiltError{Built: built}
	}

	if err := table.Validate(); err != nil {
		return fmt.Errorf("rename table: %w", err)
	}

	for _, logical := range table.Keys() {
		if _, known := b.defaultNames[logical]; !known {
			b.logger.Warn("rename for unknown object", logging.Object(logical))
		}
	}

	b.renames = b.renames.Merge(table)

	return nil
}

// Renames returns a copy of the current rename table.
func (b *Builder) Renames() k8s.RenameTable {
	return b.renames.Clone()
}

// State returns a copy of the build state.
func (b *Builder) State() State {
	return b.state.Clone()
}

// EnsureBuildNames builds the requested groups and their prerequisites.
// Groups already built are not regenerated. If any group fails, nothing is
// committed: the state and cache stay as they were before the call.
func (b *Builder) EnsureBuildNames(groups ...Group) error {
	plan, err := Plan(b.Graph(), b.state, groups...)
	if err != nil {
		return err
	}

	if len(plan) == 0 {
		return nil
	}

	staged := make(map[Group][]*k8s.Object, len(plan))
	emitted := maps.Clone(b.emitted)

	for _, g := range plan {
		objs, err := b.generate(g, emitted)
		if err != nil {
			return err
		}

		staged[g] = objs
	}

	for _, g := range plan {
		b.state[g] = Built
		b.cache[g] = staged[g]
	}

	b.emitted = emitted

	return nil
}

// Build returns the objects of the requested groups, concatenated in
// argument order. Missing groups and their prerequisites are built first.
func (b *Builder) Build(groups ...Group) ([]*k8s.Object, error) {
	if err := b.EnsureBuildNames(groups...); err != nil {
		return nil, err
	}

	var out []*k8s.Object
	for _, g := range groups {
		out = append(out, b.cache[g]...)
	}

	return out, nil
}

func (b *Builder) generate(g Group, emitted map[string]Group) ([]*k8s.Object, error) {
	spec := b.specs[g]

	objs, err := spec.Generate(b)
	if err != nil {
		return nil, fmt.Errorf("building group %q: %w", g, err)
	}

	out := make([]*k8s.Object, 0, len(objs))

	for _, obj := range objs {
		if obj == nil {
			continue
		}

		obj = obj.Rename(b.renames)

		if existing, dup := emitted[obj.LogicalName()]; dup {
			return nil, &DuplicateObjectError{LogicalName: obj.LogicalName(), Group: g, Existing: existing}
		}

		emitted[obj.LogicalName()] = g
		out = append(out, obj)
	}

	b.logger.Debug("built group", logging.Group(string(g)), logging.Objects(len(out)))

	return out, nil
}

func (b *Builder) builtGroups() []Group {
	var built []Group

	for _, g := range b.order {
		if b.state.Built(g) {
			built = append(built, g)
		}
	}

	return built
}
