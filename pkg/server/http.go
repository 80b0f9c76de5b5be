package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// StatusResponse is the payload served at /status.
type StatusResponse struct {
	Sessions int `json:"sessions"`
	InFlight int `json:"inFlight"`
}

// NewHTTPHandler returns a gorilla/mux router exposing admin endpoints over
// the consumer: /status (session + in-flight counts), /workers (same,
// worker-centric framing), /best is left to pkg/monitor's websocket stream
// since best-fitness tracking lives with the algorithm, not the consumer.
func (s *Server) NewHTTPHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/workers", s.handleStatus).Methods(http.MethodGet)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Sessions: s.SessionCount(),
		InFlight: s.queue.InFlightCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
