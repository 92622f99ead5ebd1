// Package api serves the REST interface for setting and inspecting lights,
// plus a small Hue-compatible subset so existing Hue clients can drive them.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/config"
	"github.com/dokzlo13/irlightd/internal/control"
	"github.com/dokzlo13/irlightd/internal/driver"
	"github.com/dokzlo13/irlightd/internal/eventbus"
	"github.com/dokzlo13/irlightd/internal/ledger"
)

const defaultLedgerLimit = 50

// Scenes reports which scenes the script defined.
type Scenes interface {
	HasScene(name string) bool
	Scenes() []string
}

// Publisher receives scene events.
type Publisher interface {
	Publish(event eventbus.Event) int
}

// Server is the HTTP API server.
type Server struct {
	addr      string
	hueUser   string
	ctrl      *control.Controller
	scenes    Scenes
	publisher Publisher
	ledger    *ledger.Ledger

	httpServer *http.Server
}

// NewServer creates a new API server. scenes and l may be nil when scripting
// or the ledger are unavailable.
func NewServer(cfg config.APIConfig, ctrl *control.Controller, scenes Scenes, publisher Publisher, l *ledger.Ledger) *Server {
	return &Server{
		addr:      cfg.Addr(),
		hueUser:   cfg.HueUser,
		ctrl:      ctrl,
		scenes:    scenes,
		publisher: publisher,
		ledger:    l,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/lights", s.listLights).Methods(http.MethodGet)
	r.HandleFunc("/lights/off", s.lightsOff).Methods(http.MethodPost)
	r.HandleFunc("/lights/resync", s.resyncLights).Methods(http.MethodPost)
	r.HandleFunc("/lights/{id}", s.getLight).Methods(http.MethodGet)
	r.HandleFunc("/lights/{id}/state", s.putLightState).Methods(http.MethodPut)
	r.HandleFunc("/lights/{id}/reapply", s.reapplyLight).Methods(http.MethodPost)
	r.HandleFunc("/scenes", s.listScenes).Methods(http.MethodGet)
	r.HandleFunc("/scenes/{name}", s.runScene).Methods(http.MethodPost)
	r.HandleFunc("/ledger", s.getLedger).Methods(http.MethodGet)

	hue := r.PathPrefix("/api/{user}").Subrouter()
	hue.Use(s.hueAuth)
	hue.HandleFunc("/lights", s.hueListLights).Methods(http.MethodGet)
	hue.HandleFunc("/lights/{id}", s.hueGetLight).Methods(http.MethodGet)
	hue.HandleFunc("/lights/{id}/state", s.huePutState).Methods(http.MethodPut)

	r.Use(logRequests)
	return r
}

// Run starts the API server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) listLights(w http.ResponseWriter, r *http.Request) {
	list, err := s.ctrl.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getLight(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctrl.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) putLightState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var change control.Change
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body: " + err.Error()})
		return
	}

	version, err := s.ctrl.Update(r.Context(), id, change)
	if err != nil {
		writeError(w, err)
		return
	}

	st, err := s.ctrl.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	st.Version = version
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) lightsOff(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("match")
	if pattern == "" {
		pattern = "**"
	}

	ids, err := s.ctrl.Off(r.Context(), pattern)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"off": ids})
}

func (s *Server) reapplyLight(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Reapply(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusBody{Status: "queued"})
}

func (s *Server) resyncLights(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Resync()
	writeJSON(w, http.StatusAccepted, statusBody{Status: "queued"})
}

func (s *Server) listScenes(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if s.scenes != nil {
		names = s.scenes.Scenes()
	}
	writeJSON(w, http.StatusOK, names)
}

// runScene queues the scene on the bus; the script runs it asynchronously.
func (s *Server) runScene(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.scenes == nil || !s.scenes.HasScene(name) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown scene: " + name})
		return
	}

	args := map[string]interface{}{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body: " + err.Error()})
			return
		}
	}

	if s.publisher.Publish(eventbus.Scene(name, args)) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "scene queue unavailable"})
		return
	}
	writeJSON(w, http.StatusAccepted, statusBody{Status: "queued"})
}

func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "ledger disabled"})
		return
	}

	limit := defaultLedgerLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit"})
			return
		}
		limit = n
	}

	var entries []*ledger.Entry
	var err error
	if light := r.URL.Query().Get("light"); light != "" {
		entries, err = s.ledger.ByLight(r.Context(), light, limit)
	} else {
		entries, err = s.ledger.Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type errorBody struct {
	Error string `json:"error"`
}

type statusBody struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, driver.ErrUnknownLight) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	log.Error().Err(err).Msg("API request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("API request")
	})
}
