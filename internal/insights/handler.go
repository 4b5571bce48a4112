package insights

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelierhq/recall/internal/api"
	"github.com/atelierhq/recall/internal/memory"
)

// Handler handles insight HTTP endpoints.
type Handler struct {
	svc      *Service
	notifier *Notifier
}

func NewHandler(svc *Service, notifier *Notifier) *Handler {
	return &Handler{svc: svc, notifier: notifier}
}

// Latest returns insights for a category, reusing a recent run when one
// exists and analyzing inline otherwise.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	category := memory.Category(chi.URLParam(r, "category"))

	result, err := h.svc.Analyze(r.Context(), category, false)
	if err != nil {
		switch {
		case errors.Is(err, memory.ErrInvalidArgument):
			api.HandleError(w, api.NewBadRequestError(err.Error()))
		case errors.Is(err, ErrAnalyzerUnavailable):
			slog.Error("fetching insights", "error", err, "category", category)
			api.HandleError(w, api.ErrServiceUnavailable)
		default:
			slog.Error("fetching insights", "error", err, "category", category)
			api.HandleError(w, api.ErrInternalServer)
		}
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// Refresh schedules a background re-analysis and returns immediately.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	category := memory.Category(chi.URLParam(r, "category"))
	if !category.Valid() {
		api.HandleError(w, api.NewBadRequestError("unknown category: "+string(category)))
		return
	}

	h.notifier.Notify(category)
	api.JSONMessage(w, http.StatusAccepted, "analysis scheduled")
}
