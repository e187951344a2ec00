// Package httputil carries the JSON conventions of the monitoring API:
// successful responses encode the payload as-is, failures encode
// {"error": "..."} with the matching status code.
package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// Respond writes payload as JSON with the given status code.
func Respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// OK writes payload with 200.
func OK(w http.ResponseWriter, payload any) {
	Respond(w, http.StatusOK, payload)
}

// Fail writes an error body with the given status code.
func Fail(w http.ResponseWriter, status int, msg string) {
	Respond(w, status, map[string]string{"error": msg})
}

// BadRequest rejects a malformed or out-of-range request.
func BadRequest(w http.ResponseWriter, msg string) {
	Fail(w, http.StatusBadRequest, msg)
}

// NotFound reports an unregistered slot or missing resource.
func NotFound(w http.ResponseWriter, msg string) {
	Fail(w, http.StatusNotFound, msg)
}

// InternalServerError reports a server-side failure.
func InternalServerError(w http.ResponseWriter, msg string) {
	Fail(w, http.StatusInternalServerError, msg)
}

// MethodNotAllowed rejects the request method and advertises the
// accepted ones via the Allow header.
func MethodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	Fail(w, http.StatusMethodNotAllowed, "method not allowed, use "+allow)
}
