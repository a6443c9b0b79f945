package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/draftwell/draftwell/internal/config"
	"github.com/draftwell/draftwell/internal/core/domain"
	"github.com/draftwell/draftwell/internal/core/ports"
	"github.com/draftwell/draftwell/internal/core/services"
)

// Server exposes the workflow over HTTP. Runs execute asynchronously; the
// caller polls GET /v1/runs/{id} or follows the SSE stream.
type Server struct {
	logger     *slog.Logger
	controller *services.Controller
	repo       ports.Repository
	brands     ports.BrandStore
	eventBus   *services.EventBus
	tracer     *services.TraceCollector
	settings   *config.SettingsStore
	markdown   goldmark.Markdown

	mu      sync.Mutex
	cancels map[domain.RunID]context.CancelFunc
}

func NewServer(
	logger *slog.Logger,
	controller *services.Controller,
	repo ports.Repository,
	brands ports.BrandStore,
	eventBus *services.EventBus,
	tracer *services.TraceCollector,
	settings *config.SettingsStore,
) *Server {
	return &Server{
		logger:     logger,
		controller: controller,
		repo:       repo,
		brands:     brands,
		eventBus:   eventBus,
		tracer:     tracer,
		settings:   settings,
		markdown: goldmark.New(
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		cancels: make(map[domain.RunID]context.CancelFunc),
	}
}

// Handler returns the http.Handler with OpenAPI request validation in front
// of the route mux.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/runs", s.handleCreateRun)
	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /v1/runs/{id}/preview", s.handlePreview)
	mux.HandleFunc("GET /v1/runs/{id}/events", s.handleRunSSE)
	mux.HandleFunc("POST /v1/runs/{id}/cancel", s.handleCancelRun)
	mux.HandleFunc("GET /v1/brands", s.handleListBrands)
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /v1/traces", s.handleListTraces)
	mux.HandleFunc("GET /v1/traces/{id}", s.handleGetTrace)
	mux.HandleFunc("GET /v1/healthz", s.handleHealth)

	validate, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return validate(mux), nil
}

// --- Runs ---

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req domain.ContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.brands.Get(req.Brand); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives the HTTP request; it gets its own context so the
	// client can disconnect without killing the workflow.
	runCtx, cancel := context.WithCancel(context.Background())

	// Reserve the ID by running synchronously up to state creation is not
	// worth the coupling; instead start the run and return its ID from the
	// first persisted snapshot via a handshake channel.
	idCh := make(chan domain.RunID, 1)
	go func() {
		defer cancel()
		state, err := s.controller.RunWithHandle(runCtx, req, func(id domain.RunID) {
			s.mu.Lock()
			s.cancels[id] = cancel
			s.mu.Unlock()
			idCh <- id
		})
		if err != nil {
			s.logger.Error("run ended with error", "error", err)
		}
		if state != nil {
			s.mu.Lock()
			delete(s.cancels, state.ID)
			s.mu.Unlock()
		}
	}()

	select {
	case id := <-idCh:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     string(id),
			"status": string(domain.RunStatusRunning),
		})
	case <-time.After(5 * time.Second):
		cancel()
		writeError(w, http.StatusServiceUnavailable, "run did not start in time")
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	brand := r.URL.Query().Get("brand")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := s.repo.ListRuns(r.Context(), brand, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type runSummary struct {
		ID         string     `json:"id"`
		Brand      string     `json:"brand"`
		Topic      string     `json:"topic"`
		Template   string     `json:"template"`
		Status     string     `json:"status"`
		Iterations int        `json:"iterations"`
		CreatedAt  time.Time  `json:"created_at"`
		Completed  *time.Time `json:"completed_at,omitempty"`
	}
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, runSummary{
			ID:         string(run.ID),
			Brand:      run.Brand,
			Topic:      run.Topic,
			Template:   run.Template,
			Status:     string(run.Status),
			Iterations: run.IterationCount,
			CreatedAt:  run.CreatedAt,
			Completed:  run.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	state, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := domain.RunID(r.PathValue("id"))

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusConflict, "run is not in progress")
		return
	}
	cancel()
	writeJSON(w, http.StatusOK, map[string]string{"id": string(id), "status": "cancelling"})
}

// handlePreview renders the current draft as HTML for HITL review.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	state, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	if state.DraftContent == "" {
		writeError(w, http.StatusNotFound, "run has no draft yet")
		return
	}

	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(state.DraftContent), &buf); err != nil {
		writeError(w, http.StatusInternalServerError, "render draft: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><title>%s</title></head><body>\n", state.Topic)
	w.Write(buf.Bytes())
	fmt.Fprintf(w, "\n<hr><p>status: %s | iterations: %d | %s</p>\n</body></html>",
		state.Status, state.IterationCount, state.StoppingReason())
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*domain.WorkflowState, bool) {
	id := domain.RunID(r.PathValue("id"))
	state, err := s.repo.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return state, true
}

// --- Brands ---

func (s *Server) handleListBrands(w http.ResponseWriter, r *http.Request) {
	names := s.brands.List()
	type brandInfo struct {
		Name             string  `json:"name"`
		Version          string  `json:"version"`
		MaxIterations    int     `json:"max_iterations"`
		QualityThreshold float64 `json:"quality_threshold"`
	}
	out := make([]brandInfo, 0, len(names))
	for _, name := range names {
		cfg, err := s.brands.Get(name)
		if err != nil {
			continue
		}
		out = append(out, brandInfo{
			Name:             cfg.Name,
			Version:          cfg.Version,
			MaxIterations:    cfg.Workflow.MaxIterations,
			QualityThreshold: cfg.Workflow.QualityThreshold,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"brands": out})
}

// --- Settings ---

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update domain.AppConfig
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.settings.UpdateConfig(r.Context(), &update); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}

// --- Traces ---

func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if s.tracer != nil {
		writeJSON(w, http.StatusOK, map[string]any{"traces": s.tracer.ListTraces(limit)})
		return
	}
	traces, err := s.repo.ListTraces(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"traces": traces})
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := domain.TraceID(r.PathValue("id"))

	if s.tracer != nil {
		if trace, err := s.tracer.GetTrace(id); err == nil {
			writeJSON(w, http.StatusOK, trace)
			return
		}
	}
	trace, err := s.repo.GetTrace(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
