package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/chelsseeey/price-watcher/config"
	"github.com/chelsseeey/price-watcher/models"
	"github.com/chelsseeey/price-watcher/repository"
	"github.com/chelsseeey/price-watcher/scheduler"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// ObservationReader is the read path of the observation store
type ObservationReader interface {
	ListObservations(ctx context.Context, f repository.ObservationFilter) ([]*models.Observation, error)
}

type Handlers struct {
	runs         *scheduler.RunManager
	observations ObservationReader
	catalog      *config.Catalog
	startedAt    time.Time
}

func NewHandlers(runs *scheduler.RunManager, observations ObservationReader, catalog *config.Catalog) *Handlers {
	return &Handlers{
		runs:         runs,
		observations: observations,
		catalog:      catalog,
		startedAt:    time.Now(),
	}
}

// Register mounts the health check and the v1 API on the router
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()

	// Catalog
	apiV1.HandleFunc("/sites", h.ListSites).Methods("GET")
	apiV1.HandleFunc("/profiles", h.ListProfiles).Methods("GET")
	apiV1.HandleFunc("/items/{site}", h.ListItems).Methods("GET")

	// Runs
	apiV1.HandleFunc("/runs", h.CreateRun).Methods("POST")
	apiV1.HandleFunc("/runs", h.ListRuns).Methods("GET")
	apiV1.HandleFunc("/runs/stats", h.GetRunStats).Methods("GET")
	apiV1.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
	apiV1.HandleFunc("/runs/{id}/start", h.StartRun).Methods("POST")
	apiV1.HandleFunc("/runs/{id}/stop", h.StopRun).Methods("POST")

	// Observations
	apiV1.HandleFunc("/observations", h.ListObservations).Methods("GET")
}

// HealthCheck returns a simple health check response
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now(),
		"service":     "price-watcher",
		"uptime":      time.Since(h.startedAt).Round(time.Second).String(),
		"active_runs": len(h.runs.Store().Active()),
	}
	writeJSON(w, http.StatusOK, response)
}

// ListSites returns the configured sites
func (h *Handlers) ListSites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Sites)
}

// ListProfiles returns the configured environment profiles
func (h *Handlers) ListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Profiles)
}

// ListItems returns the items of one site
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	site := mux.Vars(r)["site"]
	if _, ok := h.catalog.Site(site); !ok {
		writeError(w, http.StatusNotFound, "Unknown site")
		return
	}
	items := h.catalog.ItemsFor(site)
	if items == nil {
		items = []models.TargetItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateRun registers a run for a subset of the catalog. An empty body selects everything.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	run, err := h.runs.Create(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// ListRuns returns every known run, newest first
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.runs.Store().List()
	if runs == nil {
		runs = []*models.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRunStats returns run counts per status
func (h *Handlers) GetRunStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runs.Store().Stats())
}

// GetRun returns the status of one run
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.runs.Store().Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// StartRun executes a created run in the background
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.runs.Start(id); err != nil {
		writeRunError(w, err)
		return
	}
	run, _ := h.runs.Store().Get(id)
	writeJSON(w, http.StatusAccepted, run)
}

// StopRun skips the tasks of a run that have not started yet
func (h *Handlers) StopRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.runs.Stop(id); err != nil {
		writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "message": "Stop requested"})
}

// ListObservations returns stored observations, newest first
func (h *Handlers) ListObservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ObservationFilter{
		Site:   q.Get("site"),
		Item:   q.Get("item"),
		Region: q.Get("region"),
		Device: q.Get("device"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since, expected RFC3339")
			return
		}
		filter.Since = since
	}

	obs, err := h.observations.ListObservations(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list observations")
		writeError(w, http.StatusInternalServerError, "Failed to list observations")
		return
	}
	if obs == nil {
		obs = []*models.Observation{}
	}
	writeJSON(w, http.StatusOK, obs)
}

func writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "Run not found")
	case errors.Is(err, scheduler.ErrRunStarted), errors.Is(err, scheduler.ErrRunNotStarted):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
