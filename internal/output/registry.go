package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// DriverConfig carries the settings a factory may use.
type DriverConfig struct {
	// Target is the destination, e.g. the output directory.
	Target string

	// Stdout receives console output.
	Stdout io.Writer

	// Directory driver options.
	Directory []DirectoryOption
}

// DriverFactory creates a Driver.
type DriverFactory func(cfg DriverConfig) (Driver, error)

// Registry maps driver names to factories, enabling pluggable output
// destinations for the generate command.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]DriverFactory
}

// NewRegistry creates an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]DriverFactory),
	}
}

// Register adds a driver factory under the given name.
// Existing entries for the same name are overwritten.
func (r *Registry) Register(name string, factory DriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drivers[name] = factory
}

// Driver creates the named driver, or returns an error if the name is not
// registered.
func (r *Registry) Driver(name string, cfg DriverConfig) (Driver, error) {
	r.mu.RLock()
	f, ok := r.drivers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown output driver %q (available: %s)", name, r.AvailableDrivers())
	}

	return f(cfg)
}

// Names returns the sorted list of registered driver names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// AvailableDrivers returns a comma-separated string of registered driver
// names.
func (r *Registry) AvailableDrivers() string {
	names := r.Names()
	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, ", ")
}

// DefaultRegistry returns a registry pre-populated with the built-in
// drivers: print, directory, memory.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("print", func(cfg DriverConfig) (Driver, error) {
		return NewPrintDriver(cfg.Stdout), nil
	})

	r.Register("directory", func(cfg DriverConfig) (Driver, error) {
		if cfg.Target == "" {
			return nil, fmt.Errorf("directory driver: output directory is required")
		}

		return NewDirectoryDriver(cfg.Target, cfg.Directory...), nil
	})

	r.Register("memory", func(_ DriverConfig) (Driver, error) {
		return NewMemoryDriver(), nil
	})

	return r
}
