package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"share-gateway/pkg/middleware"
	"share-gateway/pkg/service"
	"share-gateway/pkg/upstream"

	"github.com/go-chi/chi/v5"
)

// automatedHeader marks background polling by the organizer dashboard so it
// does not inflate human-facing access stats.
const automatedHeader = "X-Automated-Refresh"

type healthChecker interface {
	Health(ctx context.Context) error
}

type Handler struct {
	shareService *service.ShareService
	upstream     *upstream.Client
	baseURL      string
	postgres     healthChecker
	redis        healthChecker
}

func NewHandler(shareService *service.ShareService, upstream *upstream.Client, baseURL string, postgres, redis healthChecker) *Handler {
	return &Handler{
		shareService: shareService,
		upstream:     upstream,
		baseURL:      baseURL,
		postgres:     postgres,
		redis:        redis,
	}
}

func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req service.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request"})
		return
	}

	organizerID := middleware.GetOrganizerIDFromContext(r.Context())
	bearer := middleware.GetBearerTokenFromContext(r.Context())

	summary, err := h.shareService.Create(r.Context(), organizerID, bearer, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.attachShareURL(summary)
	writeJSON(w, http.StatusCreated, summary)
}

func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	organizerID := middleware.GetOrganizerIDFromContext(r.Context())

	summaries, err := h.shareService.List(r.Context(), organizerID)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, s := range summaries {
		h.attachShareURL(s)
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req service.UpdateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request"})
		return
	}

	organizerID := middleware.GetOrganizerIDFromContext(r.Context())
	bearer := middleware.GetBearerTokenFromContext(r.Context())

	summary, err := h.shareService.Update(r.Context(), code, organizerID, bearer, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.attachShareURL(summary)
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	organizerID := middleware.GetOrganizerIDFromContext(r.Context())

	if err := h.shareService.Delete(r.Context(), code, organizerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// publicReadBody is the optional POST body for protected links. Passwords
// travel here and nowhere else; a password in the query string would end up
// in access logs and browser history.
type publicReadBody struct {
	Password *string `json:"password"`
}

func (h *Handler) PublicRead(w http.ResponseWriter, r *http.Request) {
	in := service.PublicReadInput{
		Code:      chi.URLParam(r, "code"),
		ClientKey: middleware.ClientIP(r),
		Automated: r.Header.Get(automatedHeader) != "",
	}

	if r.Method == http.MethodPost && r.Body != nil {
		var body publicReadBody
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			in.Password = body.Password
		}
	}

	view, err := h.shareService.PublicRead(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRateLimited):
			w.Header().Set("Retry-After", "60")
		case errors.Is(err, service.ErrLocked):
			w.Header().Set("Retry-After", "600")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// ProxyAction forwards an allowlisted read-only core API call, serving
// cached responses when the action's TTL allows.
func (h *Handler) ProxyAction(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")

	status, body, err := h.upstream.Proxy(r.Context(), action, r.URL.Query())
	if err != nil {
		writeError(w, service.ErrUpstream)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	health := map[string]string{"status": "ok", "postgres": "ok", "redis": "ok"}

	if h.postgres != nil {
		if err := h.postgres.Health(r.Context()); err != nil {
			health["status"], health["postgres"] = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if h.redis != nil {
		if err := h.redis.Health(r.Context()); err != nil {
			// The limiter fails open without Redis, so the gateway still
			// serves reads. Degraded, not down.
			health["status"], health["redis"] = "degraded", "unreachable"
		}
	}

	writeJSON(w, status, health)
}

func (h *Handler) attachShareURL(s *service.LinkSummary) {
	if h.baseURL != "" {
		s.ShareURL = h.baseURL + "/s/" + s.Code
	}
}
