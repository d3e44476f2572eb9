package expressions

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rendis/vsm/pkg/schema"
)

// Interpolate replaces every ${{ path }} token in template with the value at
// the dotted path in scope, e.g. "${{ metrics.taktTime }}" or
// "${{ node.data.name }}". Numbers are rounded to two decimals and a missing
// or null value renders as "n/a".
func Interpolate(template string, scope map[string]any) (string, error) {
	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "${{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}
		result.WriteString(template[i : i+idx])
		start := i + idx + 3

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeExpression, "unclosed ${{ expression")
		}
		end += start

		path := strings.TrimSpace(template[start:end])
		if path == "" {
			return "", schema.NewError(schema.ErrCodeExpression, "empty variable reference: ${{  }}")
		}
		if strings.Contains(path, "${{") {
			return "", schema.NewError(schema.ErrCodeExpression,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}

		val, _ := Lookup(scope, path)
		result.WriteString(format(val))
		i = end + 2
	}
	return result.String(), nil
}

// Lookup resolves a dotted path. Numeric segments index into lists.
func Lookup(scope map[string]any, path string) (any, bool) {
	var cur any = scope
	for _, part := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func format(v any) string {
	switch val := v.(type) {
	case nil:
		return "n/a"
	case string:
		return val
	case float64:
		if math.IsInf(val, 0) || math.IsNaN(val) {
			return strconv.FormatFloat(val, 'f', -1, 64)
		}
		return strconv.FormatFloat(math.Round(val*100)/100, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "n/a"
		}
		return string(b)
	}
}
