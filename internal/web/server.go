// Package web provides an HTTP status server for the interlock daemon.
package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/voxel8/interlockd/internal/journal"
	"github.com/voxel8/interlockd/internal/status"
)

// FaultLister returns recent journaled faults, newest first.
type FaultLister interface {
	Recent(limit int) ([]journal.Entry, error)
}

const (
	defaultFaultLimit = 50
	maxFaultLimit     = 1000
	pageFaults        = 10
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	faults     FaultLister // may be nil
}

// New creates a Server that reads state from the given tracker and faults
// from the given journal. faults may be nil.
func New(addr string, tracker *status.Tracker, faults FaultLister) *Server {
	s := &Server{tracker: tracker, faults: faults}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/faults.json", s.handleFaults)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	recent, err := s.recent(pageFaults)
	if err != nil {
		log.Printf("web: list faults: %v", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, recent)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	limit := defaultFaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxFaultLimit)
	}

	entries, err := s.recent(limit)
	if err != nil {
		log.Printf("web: list faults: %v", err)
		http.Error(w, "fault journal unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatFaults(entries))
}

func (s *Server) recent(limit int) ([]journal.Entry, error) {
	if s.faults == nil {
		return nil, nil
	}
	return s.faults.Recent(limit)
}
