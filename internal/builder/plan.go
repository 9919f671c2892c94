package builder

// Group names an independently buildable partition of a builder's output.
type Group string

// BuildState is the build status of a single group.
type BuildState int

const (
	// NotBuilt is the initial state of every group.
	NotBuilt BuildState = iota
	// Built is terminal for a builder instance.
	Built
)

// String returns the name of the state.
func (s BuildState) String() string {
	if s == Built {
		return "built"
	}

	return "not built"
}

// State maps groups to their build status. Missing entries are NotBuilt.
type State map[Group]BuildState

// Built reports whether g has been built.
func (s State) Built(g Group) bool {
	return s[g] == Built
}

// Clone returns a copy of the state.
func (s State) Clone() State {
	c := make(State, len(s))
	for g, st := range s {
		c[g] = st
	}

	return c
}

// Graph maps every known group to its declared prerequisites.
type Graph map[Group][]Group

// Plan computes the groups that must be generated, in generation order, so
// that every requested group and its prerequisites are built. Prerequisites
// come first in depth-first declaration order, each group appears at most
// once and groups already built in state are skipped. Plan does not modify
// its inputs.
func Plan(graph Graph, state State, requested ...Group) ([]Group, error) {
	var (
		order    []Group
		planned  = make(map[Group]bool)
		recStack = make(map[Group]bool)
		path     []Group
	)

	var visit func(g, requiredBy Group) error
	visit = func(g, requiredBy Group) error {
		prereqs, ok := graph[g]
		if !ok {
			return &UnknownGroupError{Group: g, RequiredBy: requiredBy}
		}

		if state.Built(g) || planned[g] {
			return nil
		}

		if recStack[g] {
			chain := []Group{g}

			for i := len(path) - 1; i >= 0; i-- {
				chain = append([]Group{path[i]}, chain...)
				if path[i] == g {
					break
				}
			}

			return &DependencyCycleError{Chain: chain}
		}

		recStack[g] = true
		path = append(path, g)

		for _, req := range prereqs {
			if err := visit(req, g); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		recStack[g] = false
		planned[g] = true
		order = append(order, g)

		return nil
	}

	for _, g := range requested {
		if err := visit(g, ""); err != nil {
			return nil, err
		}
	}

	return order, nil
}
