package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "mktsummary/internal/errors"
	"mktsummary/internal/infrastructure"
	"mktsummary/internal/middleware"
	"mktsummary/internal/services"
	"mktsummary/pkg/contracts/domain"
)

// BatchService is the part of services.BatchService the handler needs.
type BatchService interface {
	Submit(ctx context.Context, req domain.BatchRequest) (*domain.Batch, error)
	Get(id string) (*domain.Batch, error)
	List(filter services.BatchFilter) []*domain.Batch
	Cancel(id string) (*domain.Batch, error)
}

var batchStatuses = []string{
	string(domain.BatchQueued),
	string(domain.BatchRunning),
	string(domain.BatchCompleted),
	string(domain.BatchCancelled),
	string(domain.BatchFailed),
}

// BatchesHandler serves /api/v1/batches.
type BatchesHandler struct {
	service   BatchService
	validator *middleware.Validator
	logger    *slog.Logger
}

// NewBatchesHandler creates a new batches handler
func NewBatchesHandler(service BatchService, validator *middleware.Validator, logger *slog.Logger) *BatchesHandler {
	if validator == nil {
		validator = middleware.NewValidator()
	}
	return &BatchesHandler{
		service:   service,
		validator: validator,
		logger:    infrastructure.WithComponent(logger, "batches_handler"),
	}
}

// Routes returns the batch routes.
func (h *BatchesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(middleware.RequireJSON).Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/cancel", h.Cancel)
	return r
}

// Create handles POST /api/v1/batches
func (h *BatchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchRequest
	if apiErr := h.validator.DecodeJSON(w, r, &req); apiErr != nil {
		renderError(w, r, apiErr)
		return
	}

	batch, err := h.service.Submit(r.Context(), req)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Batch rejected", slog.String("error", err.Error()))
		renderError(w, r, toAPIError(err))
		return
	}

	w.Header().Set("Location", "/api/v1/batches/"+batch.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, batch)
}

// List handles GET /api/v1/batches
func (h *BatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	status, apiErr := middleware.QueryEnum(r, "status", batchStatuses, "")
	if apiErr != nil {
		renderError(w, r, apiErr)
		return
	}

	filter := services.BatchFilter{Status: domain.BatchStatus(status)}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			renderError(w, r, apierrors.NewValidationErrors([]apierrors.ValidationError{{
				Field: "limit", Message: "limit must be a positive integer",
			}}))
			return
		}
		filter.Limit = limit
	}

	render.JSON(w, r, map[string]interface{}{
		"batches": h.service.List(filter),
	})
}

// Get handles GET /api/v1/batches/{id}
func (h *BatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, toAPIError(err))
		return
	}
	render.JSON(w, r, batch)
}

// Cancel handles POST /api/v1/batches/{id}/cancel
func (h *BatchesHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	batch, err := h.service.Cancel(id)
	if err != nil {
		renderError(w, r, toAPIError(err))
		return
	}
	h.logger.InfoContext(r.Context(), "Batch cancel requested", slog.String("batch_id", id))
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, batch)
}

func toAPIError(err error) *apierrors.APIError {
	switch {
	case errors.Is(err, services.ErrBatchNotFound):
		return apierrors.NotFoundError("batch")
	case errors.Is(err, services.ErrQueueFull), errors.Is(err, services.ErrServiceStopped):
		return apierrors.ErrQueueFull
	case errors.Is(err, services.ErrBatchNotRunning):
		return apierrors.ErrBatchNotRunning
	default:
		return apierrors.FromAppError(err)
	}
}

func renderError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	_ = render.Render(w, r, apierrors.NewErrorResponse(apiErr))
}
