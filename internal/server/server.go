// Package server exposes the module core over a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/lythra/lythra/internal/bus"
	"github.com/lythra/lythra/internal/modulectx"
	"github.com/lythra/lythra/internal/registry"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Deps are the collaborators the API serves.
type Deps struct {
	Registry *registry.Registry
	Provider *modulectx.Provider
	Events   *bus.EventBus
	Version  string
}

type server struct {
	Deps
}

// New returns the API handler.
func New(deps Deps) http.Handler {
	s := &server{Deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /api/v1/modules", s.listModules)
	mux.HandleFunc("GET /api/v1/modules/{type}/recommended-size", s.recommendedSize)
	mux.HandleFunc("GET /api/v1/instances", s.listInstances)
	mux.HandleFunc("POST /api/v1/instances", s.createInstance)
	mux.HandleFunc("GET /api/v1/instances/{id}", s.getInstance)
	mux.HandleFunc("PATCH /api/v1/instances/{id}", s.updateInstance)
	mux.HandleFunc("DELETE /api/v1/instances/{id}", s.deleteInstance)
	mux.HandleFunc("POST /api/v1/instances/{id}/validate", s.validateInstance)
	mux.HandleFunc("GET /api/v1/instances/{id}/render", s.renderInstance)
	mux.HandleFunc("POST /api/v1/instances/{id}/actions/{name}", s.instanceAction)
	mux.HandleFunc("GET /api/v1/events", s.listEvents)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return false
	}
	return true
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.Version,
		"modules":   len(s.Registry.Definitions()),
		"instances": len(s.Registry.Instances()),
	})
}

func (s *server) listModules(w http.ResponseWriter, r *http.Request) {
	defs := s.Registry.Definitions()
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		defs = s.Registry.DefinitionsByCategory(category)
	}
	writeJSON(w, http.StatusOK, defs)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func (s *server) recommendedSize(w http.ResponseWriter, r *http.Request) {
	width, err := queryInt(r, "width", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	height, err := queryInt(r, "height", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Registry.RecommendedSize(r.PathValue("type"), width, height))
}

func (s *server) listInstances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.Instances())
}

type createRequest struct {
	Type string `json:"type"`
	registry.CreateOptions
}

func (s *server) createInstance(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}
	def, ok := s.Registry.Definition(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown module type %q", req.Type))
		return
	}
	if res := s.Registry.ValidateSettings(def.Type, def.DefaultSettings.Merged(req.Settings)); !res.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	cfg, err := s.Registry.Create(def.Type, &req.CreateOptions)
	switch {
	case errors.Is(err, registry.ErrDuplicateInstance):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusCreated, cfg)
	}
}

func (s *server) getInstance(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.Registry.Instance(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *server) updateInstance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cfg, ok := s.Registry.Instance(id)
	if !ok {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	var patch registry.Patch
	if !decodeBody(w, r, &patch) {
		return
	}
	// Settings are checked against the current schema only when the
	// version stays put; a version change migrates first.
	if patch.Settings != nil && (patch.Version == nil || *patch.Version == cfg.Version) {
		if _, known := s.Registry.Definition(cfg.Type); known {
			if res := s.Registry.ValidateSettings(cfg.Type, cfg.Settings.Merged(patch.Settings)); !res.Valid {
				writeJSON(w, http.StatusUnprocessableEntity, res)
				return
			}
		}
	}
	updated, ok := s.Registry.Update(id, patch)
	if !ok {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *server) deleteInstance(w http.ResponseWriter, r *http.Request) {
	if !s.Registry.Remove(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) validateInstance(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.Registry.Instance(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "instance not found")
		return
	}
	var settings registry.Settings
	if !decodeBody(w, r, &settings) {
		return
	}
	writeJSON(w, http.StatusOK, s.Registry.ValidateSettings(cfg.Type, settings))
}

func (s *server) renderInstance(w http.ResponseWriter, r *http.Request) {
	view, err := s.Provider.RenderInstance(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, registry.ErrInstanceNotFound):
		writeError(w, http.StatusNotFound, "instance not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

// instanceAction runs a module action. The body is an optional JSON object
// of arguments; the response is the view rendered afterwards.
func (s *server) instanceAction(w http.ResponseWriter, r *http.Request) {
	var args map[string]any
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	view, err := s.Provider.ActOnInstance(r.Context(), r.PathValue("id"), r.PathValue("name"), args)
	switch {
	case errors.Is(err, registry.ErrInstanceNotFound):
		writeError(w, http.StatusNotFound, "instance not found")
	case errors.Is(err, modulectx.ErrUnknownAction), errors.Is(err, registry.ErrInvalidActionArgs):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *server) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	eventType := strings.TrimSpace(r.URL.Query().Get("type"))
	moduleID := strings.TrimSpace(r.URL.Query().Get("moduleId"))

	events := make([]bus.Event, 0)
	for _, e := range s.Events.Log() {
		if eventType != "" && e.Type != eventType {
			continue
		}
		if moduleID != "" && e.ModuleID != moduleID {
			continue
		}
		events = append(events, e)
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	writeJSON(w, http.StatusOK, events)
}
