package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"contractdesk.org/internal/audit"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorFields(w, r, code, msg, nil)
}

func writeErrorFields(w http.ResponseWriter, r *http.Request, code int, msg string, fields map[string]string) {
	payload := map[string]any{
		"error": msg,
	}
	if len(fields) > 0 {
		payload["fields"] = fields
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeStatus sends a bare status code with no body.
func writeStatus(w http.ResponseWriter, code int) {
	w.WriteHeader(code)
}

// decodeJSON reads exactly one JSON value from the request body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &tooLarge):
			return errors.New("request body too large")
		}
		return errors.New("malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
