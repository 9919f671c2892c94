// Package option resolves hierarchical configuration trees whose values may
// be references to other locations in the same tree or in a shared root tree.
//
// A [Tree] is the raw, YAML-shaped configuration. A [Resolver] wraps a
// normalized, immutable copy of a tree and answers dotted-path lookups,
// following [Ref] values transitively. Lookups return a tagged [Value] that
// consumers match on through typed accessors, so shape errors surface where
// the configuration is read instead of deep inside manifest generation.
package option

import (
	"fmt"
	"strings"
)

// Tree is a raw configuration tree. Leaves are scalars, sequences or [Ref].
type Tree map[string]interface{}

// Ref is an indirection reference to another absolute path. When Root is
// true the path is resolved against the shared root tree, otherwise against
// the tree that holds the reference.
type Ref struct {
	Path string
	Root bool
}

// RefTo returns a reference to path in the same tree.
func RefTo(path string) Ref {
	return Ref{Path: path}
}

// RootRef returns a reference to path in the shared root tree.
func RootRef(path string) Ref {
	return Ref{Path: path, Root: true}
}

// String renders the reference the way it is written in YAML.
func (r Ref) String() string {
	if r.Root {
		return "!root " + r.Path
	}

	return "!ref " + r.Path
}

// splitPath splits a dotted path into its segments, ignoring empty ones.
func splitPath(path string) []string {
	parts := strings.Split(path, ".")
	segs := parts[:0]

	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}

	return segs
}

// joinPath joins path segments with dots.
func joinPath(segs []string) string {
	return strings.Join(segs, ".")
}

func childPath(parent, key string) string {
	if parent == "" {
		return key
	}

	return parent + "." + key
}

// normalize deep-copies v, converting the map and slice flavours produced by
// Go literals and decoders into map[string]interface{} / []interface{}.
// Unsupported container types are rejected so that every later consumer can
// rely on a closed set of shapes.
func normalize(v interface{}, path string) (interface{}, error) {
	switch val := v.(type) {
	case nil, string, bool, int, int32, int64, uint, uint32, uint64, float32, float64, Ref:
		return val, nil
	case *Ref:
		if val == nil {
			return nil, nil
		}

		return *val, nil
	case Tree:
		return normalizeMap(val, path)
	case map[string]interface{}:
		return normalizeMap(val, path)
	case map[string]string:
		m := make(map[string]interface{}, len(val))
		for k, s := range val {
			m[k] = s
		}

		return m, nil
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))

		for k, item := range val {
			key := fmt.Sprint(k)

			n, err := normalize(item, childPath(path, key))
			if err != nil {
				return nil, err
			}

			m[key] = n
		}

		return m, nil
	case []interface{}:
		return normalizeSlice(val, path)
	case []string:
		s := make([]interface{}, len(val))
		for i, item := range val {
			s[i] = item
		}

		return s, nil
	case []map[string]interface{}:
		s := make([]interface{}, len(val))

		for i, item := range val {
			n, err := normalizeMap(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}

			s[i] = n
		}

		return s, nil
	default:
		return nil, &TypeError{Path: path, Want: "configuration value", Got: fmt.Sprintf("%T", v)}
	}
}

func normalizeMap(m map[string]interface{}, path string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m))

	for k, v := range m {
		n, err := normalize(v, childPath(path, k))
		if err != nil {
			return nil, err
		}

		out[k] = n
	}

	return out, nil
}

func normalizeSlice(s []interface{}, path string) ([]interface{}, error) {
	out := make([]interface{}, len(s))

	for i, v := range s {
		n, err := normalize(v, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}

		out[i] = n
	}

	return out, nil
}
