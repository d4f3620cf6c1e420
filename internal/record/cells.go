package record

import (
	"fmt"
	"strconv"
	"strings"
)

// CellString renders a store cell value as its string form. Numbers keep
// their shortest decimal representation; nil reads as empty.
func CellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// CellInt coerces a cell value to an integer. Stored representations vary by
// backend: SQLite hands back int64, Postgres text columns hand back strings,
// and the memory store keeps whatever was written. Reports false when the
// value is not numerically integral.
func CellInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		n := int64(val)
		if float64(n) == val {
			return n, true
		}
		return 0, false
	case []byte:
		return CellInt(string(val))
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			n := int64(f)
			if float64(n) == f {
				return n, true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

// CellEmpty reports whether a cell reads as empty after trimming.
func CellEmpty(v any) bool {
	return strings.TrimSpace(CellString(v)) == ""
}
