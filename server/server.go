// Package server exposes the engine's command API over HTTP and streams the
// event feed to browsers over websocket. It is a thin shell: every handler
// validates, calls one dispatcher operation, and reports the outcome as
// {ok, ...} JSON. Errors never cross this boundary as panics.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"dispatch/engine"
	"dispatch/event"
	"dispatch/model"
)

// Server serves the command API plus the /ws event stream.
type Server struct {
	addr string
	d    *engine.Dispatcher
	hub  *event.Hub
	log  *logrus.Entry
}

// NewServer wires the API around a running engine and its event hub.
func NewServer(addr string, d *engine.Dispatcher, hub *event.Hub) *Server {
	return &Server{
		addr: addr,
		d:    d,
		hub:  hub,
		log:  logrus.WithField("component", "server"),
	}
}

// Router builds the route table; split out so tests can drive handlers
// without a listener.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/transporters", s.addTransporter).Methods(http.MethodPost)
	r.HandleFunc("/api/transporters", s.getTransporters).Methods(http.MethodGet)
	r.HandleFunc("/api/transporters/{name}", s.removeTransporter).Methods(http.MethodDelete)
	r.HandleFunc("/api/transporters/{name}/status", s.setTransporterStatus).Methods(http.MethodPost)
	r.HandleFunc("/api/transporters/{name}/return_home", s.returnHome).Methods(http.MethodPost)
	r.HandleFunc("/api/requests", s.createRequest).Methods(http.MethodPost)
	r.HandleFunc("/api/requests", s.getRequests).Methods(http.MethodGet)
	r.HandleFunc("/api/requests/{id}", s.removeRequest).Methods(http.MethodDelete)
	r.HandleFunc("/api/strategy", s.setStrategy).Methods(http.MethodPost)
	r.HandleFunc("/api/deploy", s.deploy).Methods(http.MethodPost)
	r.HandleFunc("/api/simulation", s.toggleSimulation).Methods(http.MethodPost)
	r.HandleFunc("/api/graph", s.getGraph).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.serveWebsocket)
	return r
}

// Serve blocks on the HTTP listener.
func (s *Server) Serve() error {
	s.log.WithField("addr", s.addr).Info("serving")
	if err := http.ListenAndServe(s.addr, s.Router()); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// --- Handlers ---------------------------------------------------------------

func (s *Server) addTransporter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if body.Name == "" {
		s.fail(w, errors.New("name is required"))
		return
	}
	if _, err := s.d.AddWorker(body.Name); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, map[string]interface{}{"name": body.Name, "location": model.Lounge})
}

func (s *Server) getTransporters(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, map[string]interface{}{"transporters": s.d.Workers()})
}

func (s *Server) removeTransporter(w http.ResponseWriter, r *http.Request) {
	if err := s.d.RemoveWorker(mux.Vars(r)["name"]); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) setTransporterStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if body.Status != "active" && body.Status != "inactive" {
		s.fail(w, fmt.Errorf("status must be active or inactive, got %q", body.Status))
		return
	}
	if err := s.d.SetWorkerStatus(mux.Vars(r)["name"], body.Status == "active"); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) returnHome(w http.ResponseWriter, r *http.Request) {
	if err := s.d.ReturnHome(mux.Vars(r)["name"]); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		Type        string `json:"transport_type"`
		Urgent      bool   `json:"urgent"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if body.Type == "" {
		body.Type = string(model.Stretcher)
	}
	req, err := s.d.CreateRequest(body.Origin, body.Destination, body.Type, body.Urgent)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, map[string]interface{}{"id": req.ID})
}

func (s *Server) getRequests(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, map[string]interface{}{"requests": s.d.RequestViews()})
}

func (s *Server) removeRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.d.RemoveRequest(mux.Vars(r)["id"]); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) setStrategy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Strategy string `json:"strategy"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.d.SetStrategy(body.Strategy); err != nil {
		s.fail(w, err)
		return
	}
	s.ok(w, map[string]interface{}{"strategy": body.Strategy})
}

func (s *Server) deploy(w http.ResponseWriter, _ *http.Request) {
	s.d.ScheduleReplan()
	s.ok(w, nil)
}

func (s *Server) toggleSimulation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Running bool `json:"running"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	s.d.ToggleSimulation(body.Running)
	s.ok(w, map[string]interface{}{"running": s.d.SimulationRunning()})
}

func (s *Server) getGraph(w http.ResponseWriter, _ *http.Request) {
	g := s.d.Graph()
	s.ok(w, map[string]interface{}{
		"nodes": g.Nodes(),
		"edges": g.Edges(),
	})
}

// serveWebsocket upgrades the connection and pumps hub events until the
// peer goes away.
func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	events, cancel := s.hub.Subscribe()
	defer cancel()

	cli, err := newClient(events, w, r)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	if err := cli.Sync(); err != nil {
		s.log.WithError(err).Info("websocket client gone")
	}
}

// --- Response shaping ---------------------------------------------------------

// errKind maps engine errors to the API taxonomy.
func errKind(err error) (kind string, status int) {
	switch {
	case errors.Is(err, engine.ErrNoPath):
		return "planning", http.StatusConflict
	case errors.Is(err, engine.ErrWorkerBusy):
		return "movement", http.StatusConflict
	case errors.Is(err, engine.ErrWorkerNotFound),
		errors.Is(err, engine.ErrRequestNotFound):
		return "validation", http.StatusNotFound
	default:
		return "validation", http.StatusBadRequest
	}
}

func (s *Server) ok(w http.ResponseWriter, extra map[string]interface{}) {
	body := map[string]interface{}{"ok": true}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	kind, status := errKind(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":      false,
		"kind":    kind,
		"message": err.Error(),
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.fail(w, fmt.Errorf("bad request body: %w", err))
		return false
	}
	return true
}
