// Package api exposes the read-only query surface over stored provenance
// records.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/probekit/mailtrace/internal/repository"
)

// Error codes for API responses
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeEmailNotFound   = "EMAIL_NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EmailHandler handles HTTP requests for the email read endpoints
type EmailHandler struct {
	repo   repository.EmailRepositoryInterface
	logger *slog.Logger
}

// NewEmailHandler creates a new EmailHandler instance
func NewEmailHandler(repo repository.EmailRepositoryInterface, logger *slog.Logger) *EmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailHandler{
		repo:   repo,
		logger: logger,
	}
}

// LatestBySubject handles GET /api/v1/emails/latest?subject=...
// "No record yet" is a 404 with an explicit code, never a server error.
func (h *EmailHandler) LatestBySubject(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "subject query param required")
		return
	}

	email, err := h.repo.LatestBySubject(r.Context(), subject)
	if err != nil {
		if errors.Is(err, repository.ErrEmailNotFound) {
			h.writeError(w, http.StatusNotFound, CodeEmailNotFound, "No email found for subject")
			return
		}
		h.logger.Error("failed to get latest email",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to get latest email")
		return
	}

	h.writeSuccess(w, http.StatusOK, email)
}

// List handles GET /api/v1/emails?limit=...
func (h *EmailHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	emails, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list emails", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to list emails")
		return
	}
	if emails == nil {
		emails = []repository.Email{}
	}

	h.writeSuccess(w, http.StatusOK, emails)
}

// writeSuccess writes a success JSON response
func (h *EmailHandler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// writeError writes an error JSON response
func (h *EmailHandler) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}
