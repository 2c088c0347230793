package engine

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
)

// Validation primitives narrow one untyped argument value. Each returns the
// typed value or a validation error carrying message. A nil value means the
// argument was absent; the "present" result reports which case applied.

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(\.\d{3})?Z?)?$`)

// EnsureString returns the trimmed string. Absent values pass through.
func EnsureString(v any, message string) (string, bool, error) {
	if v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, errmodel.Validation(message)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false, errmodel.Validation(message)
	}
	return s, true, nil
}

// RequireString is EnsureString without the absent passthrough.
func RequireString(v any, message string) (string, error) {
	s, ok, err := EnsureString(v, message)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errmodel.Validation(message)
	}
	return s, nil
}

// EnsurePositiveNumber requires a finite number greater than zero.
// There is no absent passthrough.
func EnsurePositiveNumber(v any, message string) (float64, error) {
	n, ok := toNumber(v)
	if !ok || n <= 0 {
		return 0, errmodel.Validation(message)
	}
	return n, nil
}

// EnsureNumber returns a finite number. Absent values pass through.
func EnsureNumber(v any, message string) (float64, bool, error) {
	if v == nil {
		return 0, false, nil
	}
	n, ok := toNumber(v)
	if !ok {
		return 0, false, errmodel.Validation(message)
	}
	return n, true, nil
}

// EnsureBoolean returns a bool. Absent values pass through.
func EnsureBoolean(v any, message string) (bool, bool, error) {
	if v == nil {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, errmodel.Validation(message)
	}
	return b, true, nil
}

// EnsureObject returns a JSON object unchanged. Absent values pass through;
// arrays and scalars fail.
func EnsureObject(v any, message string) (map[string]any, bool, error) {
	if v == nil {
		return nil, false, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false, errmodel.Validation(message)
	}
	return m, true, nil
}

// EnsureArray returns a JSON array unchanged. Absent values pass through.
func EnsureArray(v any, message string) ([]any, bool, error) {
	if v == nil {
		return nil, false, nil
	}
	switch a := v.(type) {
	case []any:
		return a, true, nil
	case []string:
		out := make([]any, len(a))
		for i, s := range a {
			out[i] = s
		}
		return out, true, nil
	default:
		return nil, false, errmodel.Validation(message)
	}
}

// EnsureISODate accepts YYYY-MM-DD with an optional THH:MM:SS[.mmm][Z] suffix.
// No calendar validation is done.
func EnsureISODate(v any, message string) (string, bool, error) {
	if v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, errmodel.Validation(message)
	}
	if !isoDatePattern.MatchString(s) {
		return "", false, errmodel.Validationf("%s. Expected ISO 8601 format (e.g., 2024-01-15 or 2024-01-15T10:30:00)", message)
	}
	return s, true, nil
}

// OptionalPositiveNumber is lenient: absent or invalid values yield def.
func OptionalPositiveNumber(v any, def float64) float64 {
	n, ok := toNumber(v)
	if !ok || n <= 0 {
		return def
	}
	return n
}

var entityTypes = []string{"deal", "contact", "company", "lead"}

// EnsureEntityType accepts deal, contact, company or lead in any case and
// returns it upper-cased.
func EnsureEntityType(v any) (string, error) {
	const message = `Parameter "entityType" must be one of: deal, contact, company, lead`
	s, ok, err := EnsureString(v, message)
	if err != nil || !ok {
		return "", errmodel.Validation(message)
	}
	lower := strings.ToLower(s)
	for _, t := range entityTypes {
		if lower == t {
			return strings.ToUpper(s), nil
		}
	}
	return "", errmodel.Validation(message)
}

func toNumber(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int8:
		n = float64(x)
	case int16:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case uint:
		n = float64(x)
	case uint8:
		n = float64(x)
	case uint16:
		n = float64(x)
	case uint32:
		n = float64(x)
	case uint64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
