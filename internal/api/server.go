package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"FlowSentry/internal/pipeline"
)

// Server exposes a small status API next to the running detector so
// operators can check liveness and counters without stopping capture.
type Server struct {
	http *http.Server
	pipe *pipeline.Pipeline
}

// NewServer builds the status server over the given pipeline.
func NewServer(listenAddr string, pipe *pipeline.Pipeline) *Server {
	s := &Server{pipe: pipe}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	r.HandleFunc("/api/v1/stats", s.statsHandler).Methods("GET")

	s.http = &http.Server{
		Addr:    listenAddr,
		Handler: r,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("Status API listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", s.http.Addr, err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		log.Printf("Status API forced to shutdown: %v", err)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.pipe.Stats()
	jsonBytes, err := json.Marshal(stats)
	if err != nil {
		http.Error(w, "failed to marshal stats", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}
