package option

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
	"helm.sh/helm/v3/pkg/strvals"
)

// YAML tags that mark reference scalars.
const (
	TagRef  = "!ref"
	TagRoot = "!root"
)

// ParseYAML decodes a YAML document into a Tree. Scalars tagged with !ref
// become same-tree references and scalars tagged with !root become root
// references. An empty document yields an empty tree.
func ParseYAML(data []byte) (Tree, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing options: %w", err)
	}

	if doc.Kind == 0 {
		return Tree{}, nil
	}

	return FromNode(&doc)
}

// FromNode converts a decoded YAML node into a Tree. The node must be a
// mapping (or a document wrapping one).
func FromNode(node *yaml.Node) (Tree, error) {
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return Tree{}, nil
		}

		node = node.Content[0]
	}

	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return Tree{}, nil
	}

	v, err := fromNode(node, "")
	if err != nil {
		return nil, err
	}

	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, &TypeError{Path: "", Want: "mapping", Got: fmt.Sprintf("%T", v)}
	}

	return Tree(m), nil
}

func fromNode(node *yaml.Node, path string) (interface{}, error) {
	switch node.Kind {
	case yaml.AliasNode:
		return fromNode(node.Alias, path)
	case yaml.ScalarNode:
		return scalarFromNode(node, path)
	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(node.Content))

		for i, item := range node.Content {
			v, err := fromNode(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}

			out = append(out, v)
		}

		return out, nil
	case yaml.MappingNode:
		out := make(map[string]interface{}, len(node.Content)/2)

		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]

			if key.Value == "<<" && key.Tag == "!!merge" {
				if err := mergeInto(out, val, path); err != nil {
					return nil, err
				}

				continue
			}

			v, err := fromNode(val, childPath(path, key.Value))
			if err != nil {
				return nil, err
			}

			out[key.Value] = v
		}

		return out, nil
	default:
		return nil, fmt.Errorf("option %q: unsupported YAML node at line %d", path, node.Line)
	}
}

// mergeInto applies a YAML merge key. Keys already present win.
func mergeInto(out map[string]interface{}, val *yaml.Node, path string) error {
	sources := []*yaml.Node{val}
	if val.Kind == yaml.SequenceNode {
		sources = val.Content
	}

	for _, src := range sources {
		v, err := fromNode(src, path)
		if err != nil {
			return err
		}

		m, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("option %q: merge key requires a mapping (line %d)", path, src.Line)
		}

		for k, item := range m {
			if _, exists := out[k]; !exists {
				out[k] = item
			}
		}
	}

	return nil
}

func scalarFromNode(node *yaml.Node, path string) (interface{}, error) {
	switch node.Tag {
	case TagRef, TagRoot:
		target := strings.TrimSpace(node.Value)
		if target == "" {
			return nil, fmt.Errorf("option %q: empty %s target (line %d)", path, node.Tag, node.Line)
		}

		return Ref{Path: target, Root: node.Tag == TagRoot}, nil
	case "!!timestamp", "!!binary":
		return node.Value, nil
	}

	var v interface{}
	if err := node.Decode(&v); err != nil {
		return nil, fmt.Errorf("option %q: %w", path, err)
	}

	return v, nil
}

// SetValues applies Helm-style key=value assignments to tree in place.
func SetValues(tree Tree, values []string) error {
	for _, v := range values {
		if err := strvals.ParseInto(v, tree); err != nil {
			return fmt.Errorf("parsing --set %q: %w", v, err)
		}
	}

	return nil
}
