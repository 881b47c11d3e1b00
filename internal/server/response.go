package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusTokenExpired is returned when a bearer token is past its expiry.
const StatusTokenExpired = 440

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// healthBody is the JSON shape of health responses.
type healthBody struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
