package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ErrorEnvelope is the body of every JSON error response.
type ErrorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

// WriteError writes an envelope, adding meta.request_id when requestID is set.
func WriteError(w http.ResponseWriter, status int, requestID, code, message string) error {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	return WriteJSON(w, status, ErrorEnvelope{Code: code, Message: message, Meta: meta})
}

func HasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// FallbackHandler answers unmatched routes with a JSON envelope under the API
// prefixes and plain text elsewhere.
func FallbackHandler(status int, code string, prefixes []string, requestID func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !HasPrefix(r.URL.Path, prefixes) {
			http.Error(w, http.StatusText(status), status)
			return
		}
		id := ""
		if requestID != nil {
			id = requestID(r)
		}
		_ = WriteError(w, status, id, code, strings.ToLower(http.StatusText(status)))
	})
}
