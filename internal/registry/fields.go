package registry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number reads a numeric attribute. Canvas inputs arrive as JSON numbers,
// Go numerics or numeric strings; anything else, including NaN and
// infinities, reads as absent.
func Number(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return 0, false
	}
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case int32:
		f = float64(val)
	case uint:
		f = float64(val)
	case uint64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Float reads a numeric attribute, treating a missing value as 0.
func Float(data map[string]any, key string) float64 {
	f, _ := Number(data, key)
	return f
}

// Percent reads a percentage attribute, treating a missing value as 100.
func Percent(data map[string]any, key string) float64 {
	if f, ok := Number(data, key); ok {
		return f
	}
	return 100
}

// Text reads a string attribute, "" when missing or not a string.
func Text(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
