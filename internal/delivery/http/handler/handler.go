package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/user/fetch-service/internal/delivery/http/request"
	"github.com/user/fetch-service/internal/delivery/http/response"
	"github.com/user/fetch-service/internal/usecase"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	urlManager usecase.URLManager
	checks     map[string]HealthCheck
	logger     *zap.Logger
}

func NewHandler(urlManager usecase.URLManager, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		urlManager: urlManager,
		checks:     checks,
		logger:     logger,
	}
}

func (h *Handler) HandleSubmitFetch(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitFetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !isAbsoluteHTTPURL(req.URL) {
		h.writeJSONError(w, "Invalid URL format", http.StatusBadRequest)
		return
	}

	requestID, err := h.urlManager.Submit(r.Context(), req.URL, req.ForceFetch)
	if err != nil {
		if errors.Is(err, usecase.ErrURLRecentlySubmitted) {
			h.writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("Failed to submit URL", zap.String("url", req.URL), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := response.SubmitFetchResponse{
		Status:         "success",
		Message:        "URL submitted for fetching",
		FetchRequestID: requestID,
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) HandleGetFetchStatus(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		h.writeJSONError(w, "URL query parameter is required", http.StatusBadRequest)
		return
	}

	if !isAbsoluteHTTPURL(rawURL) {
		h.writeJSONError(w, "Invalid URL format in query parameter", http.StatusBadRequest)
		return
	}

	status, err := h.urlManager.GetStatus(r.Context(), rawURL)
	if err != nil {
		h.logger.Error("Failed to get fetch status", zap.String("url", rawURL), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if status.CurrentStatus == usecase.StatusNotFound {
		h.writeJSONError(w, "Fetch status not found for the given URL", http.StatusNotFound)
		return
	}

	resp := response.FetchStatusResponse{
		URL:                status.URL,
		CurrentStatus:      status.CurrentStatus,
		LastFetchTimestamp: status.LastFetchTimestamp,
		NextRetryAt:        status.NextRetryAt,
		FailureReason:      status.FailureReason,
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleHealthCheck runs every registered check with a short timeout.
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := response.HealthResponse{Status: "ok"}
	code := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	h.writeJSON(w, code, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
