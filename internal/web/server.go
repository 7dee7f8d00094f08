// Package web serves the log files, a status page and a live record feed
// over HTTP.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/spf13/afero"

	"github.com/sweeney/lora-logger/internal/status"
)

// Server serves the storage root and the status endpoints over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	files      http.Handler
}

// New creates a Server. Files are served from fs; "/" maps to the active
// log reported by the tracker. hub may be nil to disable /live.
func New(addr string, fs afero.Fs, tracker *status.Tracker, hub *Hub) *Server {
	s := &Server{
		tracker: tracker,
		files:   http.FileServer(afero.NewHttpFs(fs).Dir("/")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleFiles)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status.json", s.handleJSON)
	if hub != nil {
		mux.Handle("/live", hub)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		path := s.tracker.Snapshot().LogPath
		if path == "" {
			http.Error(w, "no active log", http.StatusNotFound)
			return
		}
		r2 := r.Clone(r.Context())
		r2.URL.Path = path
		r = r2
	}
	s.files.ServeHTTP(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
