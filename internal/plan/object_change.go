package plan

import (
	"reflect"
	"sort"

	"github.com/hupe1980/promstack/internal/k8s"
)

// ObjectChange is an object added, removed or modified between the
// directory and the bundle. Objects are matched by kind, namespace and name.
type ObjectChange struct {
	Type      ChangeType `json:"type"`
	Kind      string     `json:"kind"`
	Namespace string     `json:"namespace,omitempty"`
	Name      string     `json:"name"`
	File      string     `json:"file"`
}

// Ref returns "Kind/namespace/name", omitting an empty namespace.
func (c ObjectChange) Ref() string {
	return joinRef(c.Kind, c.Namespace, c.Name)
}

// located is an object together with the file it was read from.
type located struct {
	obj  *k8s.Object
	file string
}

func (l located) key() string {
	return joinRef(l.obj.Kind(), l.obj.Namespace(), l.obj.Name())
}

func (l located) change(ct ChangeType) ObjectChange {
	return ObjectChange{
		Type:      ct,
		Kind:      l.obj.Kind(),
		Namespace: l.obj.Namespace(),
		Name:      l.obj.Name(),
		File:      l.file,
	}
}

// CompareObjects compares two object lists. Objects moved between files
// without other changes are not reported.
func CompareObjects(existing, generated []*k8s.Object) []ObjectChange {
	return compareLocated(locate(existing), locate(generated))
}

func locate(objs []*k8s.Object) []located {
	out := make([]located, len(objs))
	for i, obj := range objs {
		out[i] = located{obj: obj, file: obj.Instance()}
	}

	return out
}

func compareLocated(existing, generated []located) []ObjectChange {
	oldIdx := index(existing)
	newIdx := index(generated)

	var changes []ObjectChange

	for key, old := range oldIdx {
		if _, ok := newIdx[key]; !ok {
			changes = append(changes, old.change(ChangeRemoved))
		}
	}

	for key, cur := range newIdx {
		old, ok := oldIdx[key]
		if !ok {
			changes = append(changes, cur.change(ChangeAdded))

			continue
		}

		if !reflect.DeepEqual(old.obj.Document(), cur.obj.Document()) {
			changes = append(changes, cur.change(ChangeModified))
		}
	}

	// Removals first, then by reference.
	sort.Slice(changes, func(i, j int) bool {
		ri, rj := changes[i].Type == ChangeRemoved, changes[j].Type == ChangeRemoved
		if ri != rj {
			return ri
		}

		return changes[i].Ref() < changes[j].Ref()
	})

	return changes
}

// index keys objects by reference. Later duplicates win.
func index(objs []located) map[string]located {
	idx := make(map[string]located, len(objs))
	for _, l := range objs {
		idx[l.key()] = l
	}

	return idx
}

func countObjectChanges(changes []ObjectChange) (added, removed, modified int) {
	for _, c := range changes {
		switch c.Type {
		case ChangeAdded:
			added++
		case ChangeRemoved:
			removed++
		case ChangeModified:
			modified++
		}
	}

	return added, removed, modified
}
