package memory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atelierhq/recall/internal/api"
)

// Handler handles memory HTTP endpoints.
type Handler struct {
	svc      *Service
	patterns *PatternService
	validate *validator.Validate
}

// NewHandler creates a new memory handler.
func NewHandler(svc *Service, patterns *PatternService) *Handler {
	return &Handler{
		svc:      svc,
		patterns: patterns,
		validate: validator.New(),
	}
}

// StoreMemoryRequest is the write endpoint's body.
type StoreMemoryRequest struct {
	UserID           string            `json:"user_id" validate:"required"`
	ProjectID        string            `json:"project_id"`
	Content          string            `json:"content" validate:"required,max=10000"`
	Category         string            `json:"category" validate:"required"`
	Metadata         map[string]string `json:"metadata"`
	ShareAnonymously bool              `json:"share_anonymously"`
	WithEmbedding    bool              `json:"with_embedding"`
}

// Store writes one observation across the memory tiers.
func (h *Handler) Store(w http.ResponseWriter, r *http.Request) {
	var req StoreMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	result, err := h.svc.StoreAcrossTiers(r.Context(), StoreRequest{
		UserID:           req.UserID,
		ProjectID:        req.ProjectID,
		Content:          req.Content,
		Category:         Category(req.Category),
		Metadata:         req.Metadata,
		ShareAnonymously: req.ShareAnonymously,
		WithEmbedding:    req.WithEmbedding,
	})
	if err != nil {
		h.handleDomainError(w, err, "storing memory")
		return
	}

	api.JSON(w, http.StatusCreated, result)
}

// Context returns the three-tier memory bundle for one user/project pair.
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	userID := q.Get("user_id")
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("user_id is required"))
		return
	}

	opts := QueryOptions{}
	if cats := q.Get("categories"); cats != "" {
		for _, c := range strings.Split(cats, ",") {
			cat := Category(strings.TrimSpace(c))
			if !cat.Valid() {
				api.HandleError(w, api.NewBadRequestError("unknown category: "+string(cat)))
				return
			}
			opts.Categories = append(opts.Categories, cat)
		}
	}
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 200 {
			opts.Limit = v
		}
	}

	bundle, err := h.svc.ContextualMemories(r.Context(), userID, q.Get("project_id"), opts)
	if err != nil {
		h.handleDomainError(w, err, "fetching contextual memories")
		return
	}

	api.JSON(w, http.StatusOK, bundle)
}

// SearchMemoryRequest is the combined search endpoint's body.
type SearchMemoryRequest struct {
	Query               string   `json:"query"`
	UserID              string   `json:"user_id"`
	ProjectID           string   `json:"project_id"`
	Categories          []string `json:"categories" validate:"dive,max=64"`
	Limit               int      `json:"limit" validate:"gte=0,lte=200"`
	UseVectorSearch     bool     `json:"use_vector_search"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
}

// Search runs structured tier queries plus an optional semantic search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	categories := make([]Category, 0, len(req.Categories))
	for _, c := range req.Categories {
		cat := Category(c)
		if !cat.Valid() {
			api.HandleError(w, api.NewBadRequestError("unknown category: "+c))
			return
		}
		categories = append(categories, cat)
	}

	results, err := h.svc.SearchMemories(r.Context(), SearchRequest{
		Query:               req.Query,
		UserID:              req.UserID,
		ProjectID:           req.ProjectID,
		Categories:          categories,
		Limit:               req.Limit,
		UseVectorSearch:     req.UseVectorSearch,
		SimilarityThreshold: req.SimilarityThreshold,
	})
	if err != nil {
		h.handleDomainError(w, err, "searching memories")
		return
	}

	api.JSON(w, http.StatusOK, results)
}

// Delete removes a user- or project-tier record.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	scope := Scope(chi.URLParam(r, "scope"))
	id, err := uuid.Parse(chi.URLParam(r, "memoryID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid memory id"))
		return
	}

	found, err := h.svc.Delete(r.Context(), scope, id)
	if err != nil {
		h.handleDomainError(w, err, "deleting memory")
		return
	}
	if !found {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	api.JSONMessage(w, http.StatusOK, "memory deleted")
}

// FeedbackRequest adjusts a global record's relevance.
type FeedbackRequest struct {
	IsHelpful *bool `json:"is_helpful" validate:"required"`
}

// Feedback applies helpful/unhelpful feedback to a global record.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "memoryID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid memory id"))
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	rec, found, err := h.svc.ApplyFeedback(r.Context(), id, *req.IsHelpful)
	if err != nil {
		h.handleDomainError(w, err, "applying feedback")
		return
	}
	if !found {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	api.JSON(w, http.StatusOK, rec)
}

// TopPatterns returns the most relevant global records for a category.
func (h *Handler) TopPatterns(w http.ResponseWriter, r *http.Request) {
	category := Category(chi.URLParam(r, "category"))
	limit := patternLimit(r)

	records, err := h.patterns.TopPatterns(r.Context(), category, limit)
	if err != nil {
		h.handleDomainError(w, err, "fetching top patterns")
		return
	}

	api.JSON(w, http.StatusOK, records)
}

// IndustryPatterns returns global records for a category within one industry.
func (h *Handler) IndustryPatterns(w http.ResponseWriter, r *http.Request) {
	category := Category(chi.URLParam(r, "category"))
	industry := chi.URLParam(r, "industry")
	limit := patternLimit(r)

	records, err := h.patterns.IndustryPatterns(r.Context(), category, industry, limit)
	if err != nil {
		h.handleDomainError(w, err, "fetching industry patterns")
		return
	}

	api.JSON(w, http.StatusOK, records)
}

// RecordAnalysis returns one global record for inspection.
func (h *Handler) RecordAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid record id"))
		return
	}

	rec, err := h.patterns.RecordAnalysis(r.Context(), id)
	if err != nil {
		h.handleDomainError(w, err, "fetching record analysis")
		return
	}

	api.JSON(w, http.StatusOK, rec)
}

func patternLimit(r *http.Request) int {
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	return limit
}

// handleDomainError translates service-layer sentinels into HTTP statuses.
func (h *Handler) handleDomainError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		api.HandleError(w, api.NewBadRequestError(err.Error()))
	case errors.Is(err, ErrNotFound):
		api.HandleError(w, api.ErrNotFound)
	case errors.Is(err, ErrStoreUnavailable):
		slog.Error(op, "error", err)
		api.HandleError(w, api.ErrServiceUnavailable)
	default:
		slog.Error(op, "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}
