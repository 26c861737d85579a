package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"funcapp-deploy/internal/core/funcapp"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Deployer is the subset of funcapp.Manager the API needs.
type Deployer interface {
	StartDeployment(ctx context.Context, req funcapp.Request) (*funcapp.Deployment, error)
	GetDeployment(ctx context.Context, id string) (*funcapp.Deployment, error)
	ListDeployments(ctx context.Context) ([]funcapp.Deployment, error)
}

type Handler struct {
	mgr Deployer
	lg  zerolog.Logger
}

func NewHandler(mgr Deployer, lg zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := &Handler{mgr: mgr, lg: lg.With().Str("component", "http").Logger()}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/deployments", func(r chi.Router) {
		r.Post("/", h.handleStartDeployment)
		r.Get("/", h.handleListDeployments)
		r.Get("/{deploymentID}", h.handleGetDeployment)
	})

	return r
}

type deployRequest struct {
	Name          string `json:"name"`
	ResourceGroup string `json:"resource_group"`
	Method        string `json:"method"`
	Location      string `json:"location"`
	Wait          *bool  `json:"wait"`
	WaitTimeout   string `json:"wait_timeout"`
}

// handleStartDeployment accepts a deployment and runs it in the background.
func (h *Handler) handleStartDeployment(w http.ResponseWriter, r *http.Request) {
	var body deployRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	req := funcapp.Request{
		Name:           body.Name,
		ResourceGroup:  body.ResourceGroup,
		Method:         funcapp.Method(body.Method),
		Location:       body.Location,
		WaitForTrigger: body.Wait == nil || *body.Wait,
	}
	if body.WaitTimeout != "" {
		d, err := time.ParseDuration(body.WaitTimeout)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid wait_timeout")
			return
		}
		req.WaitTimeout = d
	}

	d, err := h.mgr.StartDeployment(r.Context(), req)
	switch {
	case errors.Is(err, funcapp.ErrInvalidRequest), errors.Is(err, funcapp.ErrUnknownMethod):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, funcapp.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.lg.Error().Err(err).Msg("start deployment")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, d)
}

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	list, err := h.mgr.ListDeployments(r.Context())
	if err != nil {
		h.lg.Error().Err(err).Msg("list deployments")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentID")
	d, err := h.mgr.GetDeployment(r.Context(), id)
	switch {
	case errors.Is(err, funcapp.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.lg.Error().Err(err).Str("deployment_id", id).Msg("get deployment")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
