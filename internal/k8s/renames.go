package k8s

import (
	"errors"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/hupe1980/promstack/internal/maputil"
)

// RenameTable maps logical object names to replacement metadata.name values.
type RenameTable map[string]string

// InvalidRenameError reports a rename entry that cannot be used as an
// object name.
type InvalidRenameError struct {
	LogicalName string
	Name        string
	Reasons     []string
}

func (e *InvalidRenameError) Error() string {
	return fmt.Sprintf("invalid rename %q → %q: %s", e.LogicalName, e.Name, strings.Join(e.Reasons, "; "))
}

// Get returns the replacement name for logicalName, if any.
func (t RenameTable) Get(logicalName string) (string, bool) {
	if t == nil {
		return "", false
	}

	name, ok := t[logicalName]

	return name, ok
}

// Validate checks that every key is non-empty and every value is a valid
// DNS-1123 subdomain. All problems are reported together.
func (t RenameTable) Validate() error {
	var errs []error

	for _, logical := range maputil.SortedKeys(t) {
		name := t[logical]

		if strings.TrimSpace(logical) == "" {
			errs = append(errs, &InvalidRenameError{LogicalName: logical, Name: name, Reasons: []string{"logical name must not be empty"}})

			continue
		}

		if reasons := validation.IsDNS1123Subdomain(name); len(reasons) > 0 {
			errs = append(errs, &InvalidRenameError{LogicalName: logical, Name: name, Reasons: reasons})
		}
	}

	return errors.Join(errs...)
}

// Merge returns a new table with the entries of other taking precedence.
func (t RenameTable) Merge(other RenameTable) RenameTable {
	merged := make(RenameTable, len(t)+len(other))

	for k, v := range t {
		merged[k] = v
	}

	for k, v := range other {
		merged[k] = v
	}

	return merged
}

// Clone returns a copy of the table.
func (t RenameTable) Clone() RenameTable {
	return t.Merge(nil)
}

// Keys returns the logical names in lexical order.
func (t RenameTable) Keys() []string {
	return maputil.SortedKeys(t)
}
