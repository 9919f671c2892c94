package option

import (
	"errors"
	"fmt"

	"helm.sh/helm/v3/pkg/chartutil"

	"github.com/hupe1980/promstack/internal/maputil"
)

// Resolver answers path lookups against an immutable configuration tree.
// A Resolver is safe for concurrent use once constructed.
type Resolver struct {
	tree map[string]interface{}
	root *Resolver
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRoot sets the shared root tree that root references resolve against.
func WithRoot(root *Resolver) ResolverOption {
	return func(r *Resolver) {
		r.root = root
	}
}

// NewResolver creates a resolver over a normalized deep copy of tree.
func NewResolver(tree Tree, opts ...ResolverOption) (*Resolver, error) {
	m, err := normalizeMap(tree, "")
	if err != nil {
		return nil, err
	}

	r := &Resolver{tree: m}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Empty returns a resolver over an empty tree.
func Empty() *Resolver {
	return &Resolver{tree: map[string]interface{}{}}
}

// Root returns the shared root resolver, or nil.
func (r *Resolver) Root() *Resolver { return r.root }

// Raw returns a deep copy of the unresolved tree, references included.
func (r *Resolver) Raw() Tree {
	return Tree(maputil.DeepCopyMap(r.tree))
}

// Merge returns a new resolver in which override takes precedence over the
// receiver's tree. Nested mappings are merged key by key; scalars, sequences
// and references are replaced. A null in override deletes the key. The root
// tree is carried over.
func (r *Resolver) Merge(override Tree) (*Resolver, error) {
	over, err := normalizeMap(override, "")
	if err != nil {
		return nil, err
	}

	base := maputil.DeepCopyMap(r.tree)
	dropReshaped(over, base)

	// CoalesceTables mutates and gives precedence to its first argument.
	merged := chartutil.CoalesceTables(over, base)
	if merged == nil {
		merged = map[string]interface{}{}
	}

	return &Resolver{tree: merged, root: r.root}, nil
}

// dropReshaped removes the keys of base whose value changes between a
// mapping and a non-mapping in over. CoalesceTables keeps such keys and logs
// a warning through the standard logger instead of replacing them.
func dropReshaped(over, base map[string]interface{}) {
	for k, ov := range over {
		bv, ok := base[k]
		if !ok || ov == nil || bv == nil {
			continue
		}

		om, overTable := ov.(map[string]interface{})
		bm, baseTable := bv.(map[string]interface{})

		switch {
		case overTable && baseTable:
			dropReshaped(om, bm)
		case overTable != baseTable:
			delete(base, k)
		}
	}
}

// WithDefaults returns a new resolver in which the receiver's values take
// precedence over defaults.
func (r *Resolver) WithDefaults(defaults Tree) (*Resolver, error) {
	base, err := NewResolver(defaults, WithRoot(r.root))
	if err != nil {
		return nil, err
	}

	return base.Merge(r.Raw())
}

// Get resolves path, following references at the path itself, at any
// intermediate segment and nested inside the returned value.
func (r *Resolver) Get(path string) (Value, error) {
	res := &resolution{origin: r}

	node, loc, err := res.locate(r, splitPath(path), nil)
	if err != nil {
		return Value{}, err
	}

	expanded, err := res.expand(node, loc, nil)
	if err != nil {
		return Value{}, err
	}

	return Value{path: path, raw: expanded}, nil
}

// Lookup is like Get but reports a missing path with ok == false. Cycles
// and references pointing at missing paths are still errors.
func (r *Resolver) Lookup(path string) (Value, bool, error) {
	v, err := r.Get(path)
	if err != nil {
		var missing *ConfigMissingError
		if errors.As(err, &missing) && missing.Via == "" {
			return Value{path: path}, false, nil
		}

		return Value{}, false, err
	}

	return v, true, nil
}

// Has reports whether path resolves to a value.
func (r *Resolver) Has(path string) bool {
	_, ok, err := r.Lookup(path)

	return ok && err == nil
}

// String resolves a required scalar.
func (r *Resolver) String(path string) (string, error) {
	v, err := r.Get(path)
	if err != nil {
		return "", err
	}

	return v.String()
}

// Bool resolves a required boolean.
func (r *Resolver) Bool(path string) (bool, error) {
	v, err := r.Get(path)
	if err != nil {
		return false, err
	}

	return v.Bool()
}

// Int resolves a required integer.
func (r *Resolver) Int(path string) (int, error) {
	v, err := r.Get(path)
	if err != nil {
		return 0, err
	}

	return v.Int()
}

// Mapping resolves a required mapping.
func (r *Resolver) Mapping(path string) (map[string]interface{}, error) {
	v, err := r.Get(path)
	if err != nil {
		return nil, err
	}

	return v.Mapping()
}

// Sequence resolves a required sequence.
func (r *Resolver) Sequence(path string) ([]interface{}, error) {
	v, err := r.Get(path)
	if err != nil {
		return nil, err
	}

	return v.Sequence()
}

// StringOr resolves an optional scalar, returning def when the path is
// missing or null.
func (r *Resolver) StringOr(path, def string) (string, error) {
	v, ok, err := r.Lookup(path)
	if err != nil {
		return "", err
	}

	if !ok || v.IsNull() {
		return def, nil
	}

	return v.String()
}

// BoolOr resolves an optional boolean.
func (r *Resolver) BoolOr(path string, def bool) (bool, error) {
	v, ok, err := r.Lookup(path)
	if err != nil {
		return false, err
	}

	if !ok || v.IsNull() {
		return def, nil
	}

	return v.Bool()
}

// IntOr resolves an optional integer.
func (r *Resolver) IntOr(path string, def int) (int, error) {
	v, ok, err := r.Lookup(path)
	if err != nil {
		return 0, err
	}

	if !ok || v.IsNull() {
		return def, nil
	}

	return v.Int()
}

// location is a canonical position in one of the trees. The resolution
// stack holds the reference locations currently being dereferenced.
type location struct {
	scope *Resolver
	path  string
}

// resolution carries the state of a single Get call.
type resolution struct {
	origin *Resolver
}

func (res *resolution) isRoot(scope *Resolver) bool {
	return scope != res.origin
}

func (res *resolution) label(scope *Resolver, path string) string {
	if res.isRoot(scope) {
		return "root:" + path
	}

	return path
}

// locate walks segs from the top of scope and returns the raw node found
// there together with its canonical location.
func (res *resolution) locate(scope *Resolver, segs []string, stack []location) (interface{}, location, error) {
	var cur interface{} = scope.tree

	at := location{scope: scope}

	for i, seg := range segs {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, location{}, &ConfigMissingError{Path: joinPath(segs[:i+1]), Root: res.isRoot(at.scope)}
		}

		child, ok := m[seg]
		if !ok {
			return nil, location{}, &ConfigMissingError{Path: joinPath(segs[:i+1]), Root: res.isRoot(at.scope)}
		}

		at.path = childPath(at.path, seg)

		if ref, isRef := child.(Ref); isRef {
			node, target, _, err := res.follow(at, ref, stack)
			if err != nil {
				return nil, location{}, err
			}

			child = node
			at = target
		}

		cur = child
	}

	return cur, at, nil
}

// follow dereferences the reference stored at location at. The returned
// stack includes the frame for at and must be used while expanding the
// returned node.
func (res *resolution) follow(at location, ref Ref, stack []location) (interface{}, location, []location, error) {
	for i, f := range stack {
		if f.scope == at.scope && f.path == at.path {
			chain := make([]string, 0, len(stack)-i+1)
			for _, g := range stack[i:] {
				chain = append(chain, res.label(g.scope, g.path))
			}

			chain = append(chain, res.label(at.scope, at.path))

			return nil, location{}, nil, &ConfigCycleError{Chain: chain}
		}
	}

	next := make([]location, len(stack), len(stack)+1)
	copy(next, stack)
	next = append(next, at)

	target := at.scope
	if ref.Root {
		switch {
		case at.scope.root != nil:
			target = at.scope.root
		case res.isRoot(at.scope):
			// References inside the root tree stay in the root tree.
		default:
			return nil, location{}, nil, &ConfigMissingError{Path: ref.Path, Root: true, Via: at.path}
		}
	}

	node, loc, err := res.locate(target, splitPath(ref.Path), next)
	if err != nil {
		var missing *ConfigMissingError
		if errors.As(err, &missing) && missing.Via == "" {
			missing.Via = res.label(at.scope, at.path)
		}

		return nil, location{}, nil, err
	}

	return node, loc, next, nil
}

// expand returns a copy of node with every nested reference replaced by its
// resolved value.
func (res *resolution) expand(node interface{}, at location, stack []location) (interface{}, error) {
	switch val := node.(type) {
	case Ref:
		resolved, loc, next, err := res.follow(at, val, stack)
		if err != nil {
			return nil, err
		}

		return res.expand(resolved, loc, next)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))

		for k, item := range val {
			child := location{scope: at.scope, path: childPath(at.path, k)}

			expanded, err := res.expand(item, child, stack)
			if err != nil {
				return nil, err
			}

			out[k] = expanded
		}

		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))

		for i, item := range val {
			child := location{scope: at.scope, path: fmt.Sprintf("%s[%d]", at.path, i)}

			expanded, err := res.expand(item, child, stack)
			if err != nil {
				return nil, err
			}

			out[i] = expanded
		}

		return out, nil
	default:
		return val, nil
	}
}
