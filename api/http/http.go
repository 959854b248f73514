// Package http exposes the Runtime's admin/debug REST surface of
// spec.md §6's "Public API surface": robot status, parameter CRUD,
// command execution/await/cancel, and safety control.
//
// Grounded on http_server/http_server.go's chi.Mux + http.Server +
// ctx-cancellation Start/Shutdown shape, and http_server/robot.go's
// chi.Router-per-resource route grouping, generalized from "one route
// group per robot" to "one route group per runtime subsystem".
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"roverd/diag"
	"roverd/errs"
	"roverd/param"
	"roverd/runtime"
	"roverd/safety"
)

// Server is the admin/debug HTTP API over one robot's Runtime Engine,
// Parameter Registry, and Safety Controller.
type Server struct {
	engine *runtime.Engine
	params *param.Registry
	safety *safety.Controller

	router *chi.Mux
	srv    *http.Server
}

// NewServer builds the route tree. The listen address is given to
// Start.
func NewServer(engine *runtime.Engine, params *param.Registry, safetyCtl *safety.Controller) *Server {
	s := &Server{engine: engine, params: params, safety: safetyCtl}
	r := chi.NewRouter()
	r.Get("/status", s.getStatus)
	r.Route("/params", s.paramRoutes)
	r.Route("/commands", s.commandRoutes)
	r.Route("/safety", s.safetyRoutes)
	s.router = r
	return s
}

// Start listens on addr (e.g. ":8080") until ctx is cancelled, mirroring
// http_server.Start's ctx-driven shutdown.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.router}

	serverErr := make(chan error, 1)
	go func() {
		diag.Printf("api/http: listening on %s", addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("api/http: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"operational_state": s.engine.OperationalState(),
		"classic_state":     s.engine.ClassicState(),
		"armed":             s.safety.Armed(),
		"in_error":          s.safety.InError(),
		"executing":         s.engine.Executing(),
		"categories":        s.engine.CategoryAvailability(),
	})
}

func (s *Server) paramRoutes(r chi.Router) {
	r.Get("/", s.listParams)
	r.Post("/", s.setManyParams)
	r.Get("/*", s.getParam)
	r.Put("/*", s.setParam)
}

func (s *Server) listParams(w http.ResponseWriter, r *http.Request) {
	var prefix []string
	if q := r.URL.Query().Get("prefix"); q != "" {
		prefix = splitPath(q)
	}
	writeJSON(w, http.StatusOK, s.params.List(prefix))
}

func (s *Server) getParam(w http.ResponseWriter, r *http.Request) {
	path := splitPath(chi.URLParam(r, "*"))
	value, ok := s.params.Get(path)
	if !ok {
		writeError(w, http.StatusNotFound, errs.ErrUnknownPath)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "value": value})
}

func (s *Server) setParam(w http.ResponseWriter, r *http.Request) {
	path := splitPath(chi.URLParam(r, "*"))
	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.params.Set(path, body.Value); err != nil {
		writeError(w, statusForParamError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "value": body.Value})
}

func (s *Server) setManyParams(w http.ResponseWriter, r *http.Request) {
	var body []struct {
		Path  []string `json:"path"`
		Value any      `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updates := make([]param.Update, 0, len(body))
	for _, u := range body {
		updates = append(updates, param.Update{Path: u.Path, Value: u.Value})
	}
	if failures := s.params.SetMany(updates); len(failures) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"failures": stringifyErrors(failures)})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) commandRoutes(r chi.Router) {
	r.Get("/", s.listExecuting)
	r.Post("/cancel_all", s.cancelAllCommands)
	r.Post("/{name}", s.executeCommand)
	r.Get("/{handle}/await", s.awaitCommand)
	r.Get("/{handle}/yield", s.yieldCommand)
	r.Post("/{handle}/cancel", s.cancelCommand)
}

func (s *Server) listExecuting(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Executing())
}

func (s *Server) executeCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var goal map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&goal); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	handle, err := s.engine.Execute(name, goal)
	if err != nil {
		writeError(w, statusForCommandError(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"handle": handle})
}

func (s *Server) awaitCommand(w http.ResponseWriter, r *http.Request) {
	handle := runtime.CommandHandle(chi.URLParam(r, "handle"))
	result, err := s.engine.Await(handle, timeoutFromQuery(r))
	if err != nil {
		writeError(w, statusForCommandError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) yieldCommand(w http.ResponseWriter, r *http.Request) {
	handle := runtime.CommandHandle(chi.URLParam(r, "handle"))
	result, done, err := s.engine.Yield(handle, timeoutFromQuery(r))
	if err != nil {
		writeError(w, statusForCommandError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"done": done, "result": result})
}

func (s *Server) cancelCommand(w http.ResponseWriter, r *http.Request) {
	handle := runtime.CommandHandle(chi.URLParam(r, "handle"))
	if err := s.engine.Cancel(handle); err != nil {
		writeError(w, statusForCommandError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cancelAllCommands(w http.ResponseWriter, r *http.Request) {
	s.engine.CancelAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) safetyRoutes(r chi.Router) {
	r.Get("/", s.getSafety)
	r.Post("/arm", s.arm)
	r.Post("/disarm", s.disarm)
	r.Post("/force_disarm", s.forceDisarm)
}

func (s *Server) getSafety(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    s.safety.State().String(),
		"armed":    s.safety.Armed(),
		"in_error": s.safety.InError(),
	})
}

func (s *Server) arm(w http.ResponseWriter, r *http.Request) {
	if err := s.safety.Arm(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) disarm(w http.ResponseWriter, r *http.Request) {
	if failed := s.safety.Disarm(); len(failed) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"failed_callbacks": failed})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) forceDisarm(w http.ResponseWriter, r *http.Request) {
	if err := s.safety.ForceDisarm(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func splitPath(raw string) []string {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "/")
}

func timeoutFromQuery(r *http.Request) time.Duration {
	raw := r.URL.Query().Get("timeout_ms")
	if raw == "" {
		return 0
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func statusForParamError(err error) int {
	switch {
	case errors.Is(err, errs.ErrUnknownPath):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrValidation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func statusForCommandError(err error) int {
	switch {
	case errors.Is(err, errs.ErrUnknownCommand), errors.Is(err, errs.ErrCommandGone):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrStateNotAllowed), errors.Is(err, errs.ErrCategoryFull), errors.Is(err, errs.ErrGoalValidation):
		return http.StatusConflict
	case errors.Is(err, runtime.ErrAwaitTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func stringifyErrors(failures map[string]error) map[string]string {
	out := make(map[string]string, len(failures))
	for k, v := range failures {
		out[k] = v.Error()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		diag.Printf("api/http: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
