package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xerud2002/Dos/internal/catalog"
)

const (
	contentTypeJSON = "application/json"

	defaultProviderLimit = 10
	maxProviderLimit     = 50
)

type Handler struct {
	catalog  *catalog.Service
	validate *validator.Validate
	logger   *slog.Logger
	started  time.Time
}

func NewHandler(svc *catalog.Service, logger *slog.Logger) *Handler {
	return &Handler{
		catalog:  svc,
		validate: validator.New(),
		logger:   logger,
		started:  time.Now().UTC(),
	}
}

type ReviewRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"required,max=32"`
	Message string `json:"message" validate:"required,max=2000"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
}

type ReviewResponse struct {
	Review   catalog.Review   `json:"review"`
	Provider catalog.Provider `json:"provider"`
}

type ClaimRequest struct {
	ProviderID     string   `json:"providerId" validate:"required"`
	ProviderName   string   `json:"providerName"`
	UserID         string   `json:"userId" validate:"required"`
	UserEmail      string   `json:"userEmail" validate:"required,email"`
	UserName       string   `json:"userName"`
	Representative string   `json:"representative" validate:"required,max=200"`
	Role           string   `json:"role"`
	Phone          string   `json:"phone" validate:"required,max=32"`
	TaxID          string   `json:"taxId" validate:"required,max=32"`
	Address        string   `json:"address"`
	Message        string   `json:"message" validate:"max=2000"`
	Documents      []string `json:"documents" validate:"max=10,dive,url"`
}

type ClaimStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondError(w, err.Code, err.Message)
		return
	}

	review, provider, err := h.catalog.SubmitReview(r.Context(), catalog.ReviewInput{
		Name:    req.Name,
		Phone:   req.Phone,
		Message: req.Message,
		Rating:  req.Rating,
	})
	if err != nil {
		h.respondServiceError(w, "failed to submit review", err)
		return
	}

	h.respondJSON(w, http.StatusCreated, ReviewResponse{Review: review, Provider: provider})
}

func (h *Handler) searchReviews(w http.ResponseWriter, r *http.Request) {
	results, err := h.catalog.SearchReviews(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respondServiceError(w, "failed to search reviews", err)
		return
	}

	h.respondJSON(w, http.StatusOK, results)
}

func (h *Handler) searchProviders(w http.ResponseWriter, r *http.Request) {
	limit := defaultProviderLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxProviderLimit)
	}

	providers, err := h.catalog.SearchProviders(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.respondServiceError(w, "failed to search providers", err)
		return
	}

	h.respondJSON(w, http.StatusOK, providers)
}

func (h *Handler) getProvider(w http.ResponseWriter, r *http.Request) {
	profile, err := h.catalog.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, "failed to load provider", err)
		return
	}

	h.respondJSON(w, http.StatusOK, profile)
}

func (h *Handler) createClaim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondError(w, err.Code, err.Message)
		return
	}

	claim, err := h.catalog.SubmitClaim(r.Context(), catalog.Claim{
		ProviderID:     req.ProviderID,
		ProviderName:   req.ProviderName,
		UserID:         req.UserID,
		UserEmail:      req.UserEmail,
		UserName:       req.UserName,
		Representative: req.Representative,
		Role:           req.Role,
		Phone:          req.Phone,
		TaxID:          req.TaxID,
		Address:        req.Address,
		Message:        req.Message,
		Documents:      req.Documents,
	})
	if err != nil {
		h.respondServiceError(w, "failed to submit claim", err)
		return
	}

	h.respondJSON(w, http.StatusCreated, claim)
}

func (h *Handler) listClaims(w http.ResponseWriter, r *http.Request) {
	status := catalog.ClaimStatus(r.URL.Query().Get("status"))

	claims, err := h.catalog.ListClaims(r.Context(), status)
	if err != nil {
		h.respondServiceError(w, "failed to list claims", err)
		return
	}

	h.respondJSON(w, http.StatusOK, claims)
}

func (h *Handler) updateClaimStatus(w http.ResponseWriter, r *http.Request) {
	var req ClaimStatusRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondError(w, err.Code, err.Message)
		return
	}

	claim, err := h.catalog.ReviewClaim(r.Context(), chi.URLParam(r, "id"), catalog.ClaimStatus(req.Status))
	if err != nil {
		h.respondServiceError(w, "failed to update claim", err)
		return
	}

	h.respondJSON(w, http.StatusOK, claim)
}

type StatusResponse struct {
	Status  string `json:"status"`
	Time    string `json:"time"`
	Started string `json:"started"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, StatusResponse{
		Status:  "ok",
		Time:    time.Now().UTC().Format(time.RFC3339),
		Started: h.started.Format(time.RFC3339),
	})
}

type validationError struct {
	Code    int
	Message string
}

func (h *Handler) decodeAndValidate(r *http.Request, v interface{}) *validationError {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &validationError{
			Code:    http.StatusBadRequest,
			Message: "invalid JSON format",
		}
	}

	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &validationError{
				Code:    http.StatusBadRequest,
				Message: err.Error(),
			}
		}

		errMsgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			errMsgs = append(errMsgs, fmt.Sprintf(
				"field %s: %s",
				fe.Field(),
				fe.Tag(),
			))
		}
		return &validationError{
			Code:    http.StatusUnprocessableEntity,
			Message: strings.Join(errMsgs, "; "),
		}
	}

	return nil
}

func (h *Handler) respondServiceError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrInvalidRating),
		errors.Is(err, catalog.ErrInvalidClaim),
		errors.Is(err, catalog.ErrInvalidStatus):
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(msg, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, message string) {
	h.respondJSON(w, code, ErrorResponse{Error: message})
}
