package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/option"
	"github.com/hupe1980/promstack/internal/provider"
)

// DefaultProjectFile is the project file looked up when none is given.
const DefaultProjectFile = "promstack.yaml"

// DefaultBundlePrefix names the generated files when the project does not.
const DefaultBundlePrefix = "prometheus-stack"

// Project describes one deployment bundle: the target provider, the shared
// root options, the stack options, the renames and how files are laid out.
type Project struct {
	// Provider is the "platform/service" target. Empty means the CLI
	// default (or the generic provider).
	Provider string

	// Root is the shared tree that !root references resolve against.
	Root option.Tree

	// Stack holds the monitoring stack options.
	Stack option.Tree

	// Renames maps logical object names to final object names.
	Renames k8s.RenameTable

	// Bundle controls the generated files.
	Bundle BundleSettings

	// Extra lists manifest files added to the bundle as-is. Relative paths
	// are resolved against Dir.
	Extra []string

	// Dir is the directory of the project file. Set by LoadProject.
	Dir string
}

// BundleSettings controls file naming and the bootstrap script.
type BundleSettings struct {
	// Prefix is the common file name prefix.
	Prefix string `yaml:"prefix"`

	// Namespace emits a Namespace object for the stack namespace.
	Namespace bool `yaml:"namespace"`

	// SetContext adds a kubectl set-context line to the script.
	SetContext bool `yaml:"set_context"`

	// Storage builds the STORAGE group.
	Storage bool `yaml:"storage"`
}

var bundleKeys = map[string]bool{
	"prefix":      true,
	"namespace":   true,
	"set_context": true,
	"storage":     true,
}

// NewProject returns an empty project with default bundle settings.
func NewProject() *Project {
	return &Project{
		Root:    option.Tree{},
		Stack:   option.Tree{},
		Renames: k8s.RenameTable{},
		Bundle: BundleSettings{
			Prefix:  DefaultBundlePrefix,
			Storage: true,
		},
	}
}

// ParseProject decodes a project file. The root and stack sections keep
// their !ref and !root tags.
func ParseProject(data []byte) (*Project, error) {
	p := NewProject()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing project: %w", err)
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		return p, nil
	}

	top := doc.Content[0]
	if top.Kind == yaml.ScalarNode && top.Tag == "!!null" {
		return p, nil
	}

	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing project: expected a mapping at line %d", top.Line)
	}

	for i := 0; i+1 < len(top.Content); i += 2 {
		key, val := top.Content[i].Value, top.Content[i+1]

		if err := p.decodeSection(key, val); err != nil {
			return nil, fmt.Errorf("project section %q: %w", key, err)
		}
	}

	return p, nil
}

func (p *Project) decodeSection(key string, val *yaml.Node) error {
	switch key {
	case "provider":
		return val.Decode(&p.Provider)
	case "root":
		tree, err := option.FromNode(val)
		if err != nil {
			return err
		}

		p.Root = tree
	case "stack":
		tree, err := option.FromNode(val)
		if err != nil {
			return err
		}

		p.Stack = tree
	case "renames":
		return val.Decode(&p.Renames)
	case "bundle":
		var raw map[string]interface{}
		if err := val.Decode(&raw); err != nil {
			return err
		}

		for k := range raw {
			if !bundleKeys[k] {
				return fmt.Errorf("unknown key %q", k)
			}
		}

		return val.Decode(&p.Bundle)
	case "extra":
		return val.Decode(&p.Extra)
	default:
		return fmt.Errorf("unknown key at line %d", val.Line)
	}

	return nil
}

// LoadProject reads and parses the project file at path and records its
// directory.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is user-provided
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}

	p, err := ParseProject(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving project path: %w", err)
	}

	p.Dir = filepath.Dir(abs)

	return p, nil
}

// ApplySets applies Helm-style key=value overrides to the stack options.
func (p *Project) ApplySets(values []string) error {
	if p.Stack == nil {
		p.Stack = option.Tree{}
	}

	return option.SetValues(p.Stack, values)
}

// ExtraPaths returns the extra manifest paths resolved against Dir.
func (p *Project) ExtraPaths() []string {
	paths := make([]string, 0, len(p.Extra))

	for _, e := range p.Extra {
		if filepath.IsAbs(e) || p.Dir == "" {
			paths = append(paths, e)
		} else {
			paths = append(paths, filepath.Join(p.Dir, e))
		}
	}

	return paths
}

// ResolveProvider returns the project provider, falling back to fallback
// when the project does not name one.
func (p *Project) ResolveProvider(fallback string) (provider.Provider, error) {
	if strings.TrimSpace(p.Provider) != "" {
		return provider.Parse(p.Provider)
	}

	return provider.Parse(fallback)
}

// Validate checks the provider, the rename table and the bundle prefix.
func (p *Project) Validate() error {
	if _, err := provider.Parse(p.Provider); err != nil {
		return err
	}

	if err := p.Renames.Validate(); err != nil {
		return err
	}

	prefix := strings.TrimSpace(p.Bundle.Prefix)
	if prefix == "" {
		return fmt.Errorf("bundle prefix must not be empty")
	}

	if strings.ContainsAny(prefix, `/\`) {
		return fmt.Errorf("bundle prefix %q must not contain path separators", prefix)
	}

	// The service file is named after the prefix and would collide with the
	// kustomization index of the directory driver.
	if strings.TrimSuffix(prefix, ".yaml") == "kustomization" {
		return fmt.Errorf("bundle prefix %q is reserved", prefix)
	}

	return nil
}
