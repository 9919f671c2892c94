package builder

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateGroup is returned when a group is registered twice.
var ErrDuplicateGroup = errors.New("build group already registered")

// DependencyCycleError reports a loop in group prerequisite declarations.
type DependencyCycleError struct {
	// Chain lists the groups on the loop, ending with the repeated one.
	Chain []Group
}

func (e *DependencyCycleError) Error() string {
	names := make([]string, len(e.Chain))
	for i, g := range e.Chain {
		names[i] = string(g)
	}

	return fmt.Sprintf("build group dependency cycle: %s", strings.Join(names, " → "))
}

// UnknownGroupError reports a group the builder does not define.
type UnknownGroupError struct {
	Group Group

	// RequiredBy is set when the unknown group was named as a prerequisite.
	RequiredBy Group
}

func (e *UnknownGroupError) Error() string {
	if e.RequiredBy != "" {
		return fmt.Sprintf("unknown build group %q (required by %q)", e.Group, e.RequiredBy)
	}

	return fmt.Sprintf("unknown build group %q", e.Group)
}

// AlreadyBuiltError is returned when the rename table is changed after
// objects have been generated. Emitted batches are cached and would not
// pick up the new names.
type AlreadyBuiltError struct {
	Built []Group
}

func (e *AlreadyBuiltError) Error() string {
	names := make([]string, len(e.Built))
	for i, g := range e.Built {
		names[i] = string(g)
	}

	return fmt.Sprintf("cannot rename objects: groups already built: %s", strings.Join(names, ", "))
}

// DuplicateObjectError reports two generated objects sharing a logical name.
type DuplicateObjectError struct {
	LogicalName string
	Group       Group
	Existing    Group
}

func (e *DuplicateObjectError) Error() string {
	if e.Group == e.Existing {
		return fmt.Sprintf("duplicate object %q in build group %q", e.LogicalName, e.Group)
	}

	return fmt.Sprintf("duplicate object %q in build group %q (already emitted by %q)", e.LogicalName, e.Group, e.Existing)
}
