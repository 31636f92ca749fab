package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/logging"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

type HTTPHandler struct {
	service ports.LinkService
	clicks  ports.ClickAccountant
	logger  *slog.Logger
}

func NewHTTPHandler(service ports.LinkService, clicks ports.ClickAccountant, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HTTPHandler{service: service, clicks: clicks, logger: logger}
}

// CreateLinkRequest payload
type CreateLinkRequest struct {
	OriginalURL string `json:"originalUrl"`
}

// Create issues a token for the posted destination.
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	issued, err := h.service.Issue(r.Context(), req.OriginalURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, issued)
}

// Redirect to original URL
func (h *HTTPHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	originalURL, err := h.service.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, originalURL, http.StatusFound)
}

// Handshake records the first view of a token when the gateway countdown starts.
func (h *HTTPHandler) Handshake(w http.ResponseWriter, r *http.Request) {
	if action := r.URL.Query().Get("action"); action != "start" {
		http.Error(w, "Unsupported action", http.StatusBadRequest)
		return
	}

	if err := h.clicks.RecordHandshakeStart(r.Context(), r.PathValue("token")); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Lookup returns the full record, including counters, for operators.
func (h *HTTPHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	link, err := h.service.Lookup(r.Context(), r.PathValue("token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, link)
}

// writeError maps domain errors onto status codes. Storage detail stays in the log.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, domain.ErrNotFound.Error(), http.StatusNotFound)
	default:
		logging.FromContext(r.Context(), h.logger).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
