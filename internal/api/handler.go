package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/evaluation"
	"github.com/nidhogg/campus-eval/internal/orchestrator"
	"github.com/nidhogg/campus-eval/internal/store"
)

// RunView is the live run being evaluated.
type RunView interface {
	Status() orchestrator.Status
	Results() []evaluation.Result
	Result(taskID string) (evaluation.Result, bool)
}

// RunStore exposes past runs.
type RunStore interface {
	Runs(ctx context.Context, limit int) ([]store.Run, error)
	Results(ctx context.Context, runID string) ([]evaluation.Result, error)
	FailureEdges(ctx context.Context, runID string) (map[string][]string, error)
}

// EventSource streams judged tasks of a run.
type EventSource interface {
	Subscribe(ctx context.Context, runID string) <-chan *orchestrator.Event
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	run    RunView
	runs   RunStore
	events EventSource
	logger *zap.Logger
}

// NewHandler creates a new API handler. runs and events may be nil.
func NewHandler(run RunView, runs RunStore, events EventSource, logger *zap.Logger) *Handler {
	return &Handler{
		run:    run,
		runs:   runs,
		events: events,
		logger: logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Live run
		r.Get("/status", h.status)
		r.Get("/summary", h.summary)
		r.Get("/results", h.listResults)
		r.Get("/results/{taskID}", h.getResult)
		r.Get("/events", h.streamEvents)

		// Stored runs
		r.Get("/runs", h.listRuns)
		r.Get("/runs/{runID}/results", h.runResults)
		r.Get("/runs/{runID}/failures", h.runFailures)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "campus-eval"})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.run.Status())
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.run.Status().Summary)
}

// listResults supports ?outcome= and ?type= filters.
func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	outcome := r.URL.Query().Get("outcome")
	typ := r.URL.Query().Get("type")

	out := []evaluation.Result{}
	for _, res := range h.run.Results() {
		if outcome != "" && string(res.Outcome) != outcome {
			continue
		}
		if typ != "" && string(res.TaskType) != typ {
			continue
		}
		out = append(out, res)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	res, ok := h.run.Result(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not judged"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// streamEvents relays judged tasks as server-sent events until the client
// goes away.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event bus not configured"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	runID := r.URL.Query().Get("run")
	if runID == "" {
		runID = h.run.Status().RunID
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range h.events.Subscribe(r.Context(), runID) {
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Warn("encode event", zap.Error(err))
			continue
		}
		fmt.Fprintf(w, "event: result\ndata: %s\n\n", data)
		flusher.Flush()
	}
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store not configured"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.Runs(r.Context(), limit)
	if err != nil {
		h.logger.Error("list runs", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) runResults(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store not configured"})
		return
	}
	results, err := h.runs.Results(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.logger.Error("list run results", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if results == nil {
		results = []evaluation.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) runFailures(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store not configured"})
		return
	}
	edges, err := h.runs.FailureEdges(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.logger.Error("list failure edges", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
