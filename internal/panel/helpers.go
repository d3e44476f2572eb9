package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rendis/vsm/pkg/schema"
)

// maxBodyBytes caps request bodies; replace_graph and icon uploads are the
// largest.
const maxBodyBytes = 8 << 20

// toJSON marshals a value to indented JSON for template rendering.
func toJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// timeAgo returns a human-readable relative time string.
// Accepts time.Time or *time.Time.
func timeAgo(v any) string {
	var t time.Time
	switch val := v.(type) {
	case time.Time:
		t = val
	case *time.Time:
		if val == nil {
			return ""
		}
		t = *val
	default:
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// severityBadge returns a CSS class name for a finding severity or job status.
func severityBadge(v any) string {
	switch fmt.Sprint(v) {
	case "critical", "error":
		return "badge-error"
	case "warning":
		return "badge-warning"
	case "success":
		return "badge-success"
	default:
		return "badge-secondary"
	}
}

// formatSeconds renders a duration in seconds as the largest sensible unit.
func formatSeconds(v float64) string {
	switch {
	case math.IsInf(v, 0) || math.IsNaN(v):
		return "n/a"
	case v >= 86400:
		return strconv.FormatFloat(math.Round(v/86400*100)/100, 'f', -1, 64) + "d"
	case v >= 3600:
		return strconv.FormatFloat(math.Round(v/3600*100)/100, 'f', -1, 64) + "h"
	default:
		return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + "s"
	}
}

// truncate shortens a string to max length, appending "..." if truncated.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps err to a status code. Structured errors keep their code
// and details in the body.
func writeFailure(w http.ResponseWriter, err error) {
	var vErr *schema.VSMError
	if !errors.As(err, &vErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, statusFor(vErr.Code), map[string]any{
		"error":   vErr.Message,
		"code":    vErr.Code,
		"node_id": vErr.NodeID,
		"details": vErr.Details,
	})
}

func statusFor(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeInvalidEdge, schema.ErrCodeExpression, schema.ErrCodeDeserialization:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeMetricsUnavailable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, ok := readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
