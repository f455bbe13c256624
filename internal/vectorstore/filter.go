package vectorstore

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// filterKeyPattern restricts metadata keys usable in filters.
var filterKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

// Filter matches rows whose metadata equals every key/value pair (logical AND).
type Filter map[string]interface{}

// Validate rejects keys that could not be rendered safely and the reserved
// row field keys.
func (f Filter) Validate() error {
	for k := range f {
		if !filterKeyPattern.MatchString(k) {
			return fmt.Errorf("%w: %q", ErrInvalidFilterKey, k)
		}
		if IsReservedKey(k) {
			return fmt.Errorf("%w: %w: %q", ErrInvalidFilterKey, ErrReservedKey, k)
		}
	}
	return nil
}

// Expression renders the filter as a predicate over metadata, keys sorted:
//
//	metadata.project = 'kak_tor' AND metadata.tahun = 2025
//
// Strings are single-quoted; numbers and booleans are not.
func (f Filter) Expression() string {
	if len(f) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(f))
	for _, k := range f.keys() {
		v := f[k]
		var lit string
		if s, ok := v.(string); ok {
			lit = "'" + strings.ReplaceAll(s, "'", "''") + "'"
		} else {
			lit = FormatValue(v)
		}
		clauses = append(clauses, "metadata."+k+" = "+lit)
	}
	return strings.Join(clauses, " AND ")
}

// Matches reports whether metadata satisfies the filter. Absent keys never match.
func (f Filter) Matches(metadata map[string]interface{}) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok || FormatValue(got) != FormatValue(want) {
			return false
		}
	}
	return true
}

// stringMap converts the filter to the canonical string form used for storage.
func (f Filter) stringMap() map[string]string {
	if len(f) == 0 {
		return nil
	}
	out := make(map[string]string, len(f))
	for k, v := range f {
		out[k] = FormatValue(v)
	}
	return out
}

func (f Filter) keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatValue renders a metadata value in canonical string form. Whole
// floats print without a fractional part so decoded JSON numbers match
// integer metadata.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// stringMetadata converts metadata to its stored form.
func stringMetadata(metadata map[string]interface{}) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = FormatValue(v)
	}
	return out
}

func interfaceMetadata(metadata map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
