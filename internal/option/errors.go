package option

import (
	"fmt"
	"strings"
)

// ConfigMissingError reports a required path that is absent from the tree.
type ConfigMissingError struct {
	// Path is the path that could not be found.
	Path string

	// Root is true when the path was looked up in the shared root tree.
	Root bool

	// Via is the path holding the reference that led to Path, if any.
	Via string
}

func (e *ConfigMissingError) Error() string {
	scope := "option"
	if e.Root {
		scope = "root option"
	}

	if e.Via != "" {
		return fmt.Sprintf("%s %q not found (referenced from %q)", scope, e.Path, e.Via)
	}

	return fmt.Sprintf("%s %q not found", scope, e.Path)
}

// ConfigCycleError reports a reference chain that loops back on itself.
type ConfigCycleError struct {
	// Chain lists the visited locations, ending with the repeated one.
	Chain []string
}

func (e *ConfigCycleError) Error() string {
	return fmt.Sprintf("option reference cycle: %s", strings.Join(e.Chain, " → "))
}

// TypeError reports a value whose shape does not match what the consumer
// asked for.
type TypeError struct {
	Path string
	Want string
	Got  string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("option %q: expected %s, got %s", e.Path, e.Want, e.Got)
}
