// Package monitor is an optional, separately-started HTTP server that
// exposes live progress of running Supervisors. It routes with
// gorilla/mux and upgrades to gorilla/websocket in the style this shop
// already uses for its collaboration API; nothing in the core
// matching/counting path depends on it being started.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"barseq/internal/runregistry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const broadcastBuffer = 64

// Server exposes RunRegistry snapshots over HTTP and WebSocket.
type Server struct {
	registry *runregistry.Registry
	router   *mux.Router

	mu          sync.Mutex
	subscribers map[string]map[chan runregistry.Event]struct{}
}

// New builds a Server backed by registry and registers its routes.
func New(registry *runregistry.Registry) *Server {
	s := &Server{
		registry:    registry,
		router:      mux.NewRouter(),
		subscribers: make(map[string]map[chan runregistry.Event]struct{}),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/api/v1/runs", s.cors(s.handleListRuns)).Methods("GET", "OPTIONS")
	s.router.HandleFunc("/api/v1/runs/{id}", s.cors(s.handleGetRun)).Methods("GET", "OPTIONS")
	s.router.HandleFunc("/api/v1/runs/{id}/stream", s.handleStream)
}

// Handler returns the server's http.Handler for use with http.ListenAndServe.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev, ok := s.registry.Get(id)
	if !ok {
		s.sendJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	s.sendJSON(w, http.StatusOK, ev)
}

// handleStream upgrades to a WebSocket and pushes every Event published
// via Publish for this run ID, until the run finishes/fails or the
// socket closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan runregistry.Event, broadcastBuffer)
	s.subscribe(id, ch)
	defer s.unsubscribe(id, ch)

	if ev, ok := s.registry.Get(id); ok {
		_ = conn.WriteJSON(ev)
	}

	for ev := range ch {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
		if ev.Stage == runregistry.StageFinished || ev.Stage == runregistry.StageFailed {
			return
		}
	}
}

func (s *Server) subscribe(runID string, ch chan runregistry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.subscribers[runID]
	if !ok {
		set = make(map[chan runregistry.Event]struct{})
		s.subscribers[runID] = set
	}
	set[ch] = struct{}{}
}

func (s *Server) unsubscribe(runID string, ch chan runregistry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.subscribers[runID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(s.subscribers, runID)
		}
	}
	close(ch)
}

// Publish fans ev out to every subscriber currently streaming its run.
// Called by the Supervisor's progress ticker; a non-blocking send so a
// slow WebSocket client never stalls the pipeline.
func (s *Server) Publish(ev runregistry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers[ev.RunID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
