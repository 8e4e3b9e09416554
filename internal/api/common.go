package api

import (
	"encoding/json"
	"net/http"
)

// jsonResponse sends a standard JSON response
func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errorResponse sends a standard Error response
func errorResponse(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, StandardResponse{
		Success: false,
		Error:   msg,
	})
}

// decodeJSON parses a request body into dst, rejecting unknown fields
// (spec §6.2: "unknown fields in requests are rejected").
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
