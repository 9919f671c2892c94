// Package prometheusstack builds the manifests of a Prometheus monitoring
// stack: Prometheus, Grafana, kube-state-metrics and node-exporter together
// with their access-control, configuration and storage objects.
//
// Objects are partitioned into four build groups. SERVICE requires
// ACCESSCONTROL and CONFIG; STORAGE is independent and only emits claims
// for volumes configured under kubernetes.storage.
package prometheusstack

import (
	"fmt"

	"github.com/hupe1980/promstack/internal/builder"
	"github.com/hupe1980/promstack/internal/option"
	"github.com/hupe1980/promstack/internal/provider"
)

// Name is the builder name, used as the source tag of generated objects.
const Name = "prometheusstack"

// Build groups.
const (
	BuildAccessControl builder.Group = "accesscontrol"
	BuildConfig        builder.Group = "config"
	BuildService       builder.Group = "service"
	BuildStorage       builder.Group = "storage"
)

// Component label values.
const (
	componentPrometheus       = "prometheus"
	componentGrafana          = "grafana"
	componentKubeStateMetrics = "kube-state-metrics"
	componentNodeExporter     = "node-exporter"
)

// Container ports.
const (
	portPrometheus       = 9090
	portGrafana          = 3000
	portKubeStateMetrics = 8080
	portNodeExporter     = 9100
	portService          = 80
)

// Stack is the Prometheus stack builder. It embeds the generic builder, so
// renames, planning and building are available directly.
type Stack struct {
	*builder.Builder

	settings *settings
}

// New creates a stack builder. opts is merged over Defaults; root is the
// shared tree that !root references in opts resolve against and may be nil.
func New(p provider.Provider, root *option.Resolver, opts option.Tree, bopts ...builder.Option) (*Stack, error) {
	var ropts []option.ResolverOption
	if root != nil {
		ropts = append(ropts, option.WithRoot(root))
	}

	base, err := option.NewResolver(Defaults(), ropts...)
	if err != nil {
		return nil, fmt.Errorf("prometheusstack defaults: %w", err)
	}

	resolver, err := base.Merge(opts)
	if err != nil {
		return nil, fmt.Errorf("prometheusstack options: %w", err)
	}

	s, err := loadSettings(resolver)
	if err != nil {
		return nil, fmt.Errorf("prometheusstack options: %w", err)
	}

	stack := &Stack{
		Builder:  builder.New(Name, resolver, p, bopts...),
		settings: s,
	}

	stack.SetDefaultNames(DefaultNames(s.basename))

	for _, spec := range []builder.GroupSpec{
		{Name: BuildAccessControl, Generate: stack.accessControl},
		{Name: BuildConfig, Generate: stack.config},
		{Name: BuildService, Requires: []builder.Group{BuildAccessControl, BuildConfig}, Generate: stack.service},
		{Name: BuildStorage, Generate: stack.storage},
	} {
		if err := stack.Register(spec); err != nil {
			return nil, err
		}
	}

	return stack, nil
}

// Basename returns the configured basename.
func (s *Stack) Basename() string { return s.settings.basename }

// Namespace returns the namespace every namespaced object is placed in.
func (s *Stack) Namespace() string { return s.settings.namespace }
