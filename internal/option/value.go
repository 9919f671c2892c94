package option

import (
	"fmt"
	"math"
	"strconv"

	"github.com/hupe1980/promstack/internal/maputil"
)

// Kind is the shape of a resolved [Value].
type Kind int

const (
	// KindNull is an explicit null or an absent optional value.
	KindNull Kind = iota
	// KindScalar is a string, number or boolean.
	KindScalar
	// KindMapping is a nested mapping.
	KindMapping
	// KindSequence is a list.
	KindSequence
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Value is a fully resolved configuration value. References have already
// been followed, including references nested inside mappings and sequences.
type Value struct {
	path string
	raw  interface{}
}

// NewValue wraps an already resolved raw value. It is mainly useful in tests
// and for callers that want to feed plain data through the typed accessors.
func NewValue(path string, raw interface{}) (Value, error) {
	n, err := normalize(raw, path)
	if err != nil {
		return Value{}, err
	}

	return Value{path: path, raw: n}, nil
}

// Path returns the path the value was requested under.
func (v Value) Path() string { return v.path }

// Kind reports the shape of the value.
func (v Value) Kind() Kind {
	switch v.raw.(type) {
	case nil:
		return KindNull
	case map[string]interface{}:
		return KindMapping
	case []interface{}:
		return KindSequence
	default:
		return KindScalar
	}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.raw == nil }

// Interface returns a deep copy of the underlying data.
func (v Value) Interface() interface{} {
	return maputil.DeepCopy(v.raw)
}

// String returns a scalar formatted as a string. Numbers and booleans are
// formatted with their canonical representation.
func (v Value) String() (string, error) {
	switch val := v.raw.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprint(val), nil
	default:
		return "", v.typeError("string")
	}
}

// Bool returns a boolean scalar.
func (v Value) Bool() (bool, error) {
	b, ok := v.raw.(bool)
	if !ok {
		return false, v.typeError("bool")
	}

	return b, nil
}

// Int returns an integer scalar. Floats without a fractional part are
// accepted since JSON-shaped decoders produce them for plain numbers.
func (v Value) Int() (int, error) {
	switch val := v.raw.(type) {
	case int:
		return val, nil
	case int32:
		return int(val), nil
	case int64:
		return int(val), nil
	case uint:
		return int(val), nil //nolint:gosec // configuration values are small
	case uint32:
		return int(val), nil
	case uint64:
		return int(val), nil //nolint:gosec // configuration values are small
	case float64:
		if val == math.Trunc(val) {
			return int(val), nil
		}
	case float32:
		if float64(val) == math.Trunc(float64(val)) {
			return int(val), nil
		}
	}

	return 0, v.typeError("integer")
}

// Mapping returns a deep copy of a mapping value.
func (v Value) Mapping() (map[string]interface{}, error) {
	m, ok := v.raw.(map[string]interface{})
	if !ok {
		return nil, v.typeError("mapping")
	}

	return maputil.DeepCopyMap(m), nil
}

// Sequence returns a deep copy of a sequence value.
func (v Value) Sequence() ([]interface{}, error) {
	s, ok := v.raw.([]interface{})
	if !ok {
		return nil, v.typeError("sequence")
	}

	return maputil.DeepCopySlice(s), nil
}

// StringMap returns a mapping whose values are all scalars as a
// map[string]string.
func (v Value) StringMap() (map[string]string, error) {
	m, ok := v.raw.(map[string]interface{})
	if !ok {
		return nil, v.typeError("mapping")
	}

	out := make(map[string]string, len(m))

	for k, item := range m {
		s, err := Value{path: childPath(v.path, k), raw: item}.String()
		if err != nil {
			return nil, err
		}

		out[k] = s
	}

	return out, nil
}

// Strings returns a sequence whose items are all scalars as a []string.
func (v Value) Strings() ([]string, error) {
	s, ok := v.raw.([]interface{})
	if !ok {
		return nil, v.typeError("sequence")
	}

	out := make([]string, 0, len(s))

	for i, item := range s {
		str, err := Value{path: fmt.Sprintf("%s[%d]", v.path, i), raw: item}.String()
		if err != nil {
			return nil, err
		}

		out = append(out, str)
	}

	return out, nil
}

func (v Value) typeError(want string) error {
	return &TypeError{Path: v.path, Want: want, Got: v.Kind().String()}
}
