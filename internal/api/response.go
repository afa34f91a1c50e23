package api

import (
	"encoding/json"
	"net/http"

	"github.com/faat/cue/internal/metrics"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func recordAuthFailure(met *metrics.Metrics) {
	if met != nil {
		met.AuthFailures.Inc()
	}
}
