// Package httputil holds the JSON response helpers shared by the monitor
// handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/obstacle.report/internal/monitoring"
)

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("httputil: encoding response: %v", err)
	}
}

// WriteJSONError writes the standard error envelope with the given status
// code and message.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}
