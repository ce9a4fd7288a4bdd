package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/orbital-labs/orbital/internal/middleware"
	"github.com/orbital-labs/orbital/internal/service"
)

// DeviceHandler serves the authorization-server half of the device flow.
// The code and token endpoints are public; approval is session-gated.
type DeviceHandler struct {
	deviceAuth *service.DeviceAuthService
}

func NewDeviceHandler(deviceAuth *service.DeviceAuthService) *DeviceHandler {
	return &DeviceHandler{deviceAuth: deviceAuth}
}

// PublicRoutes are the endpoints the CLI polls without credentials.
func (h *DeviceHandler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/code", h.IssueCode)
	r.Post("/token", h.Token)
	return r
}

// ApprovalRoutes require an authenticated portal session.
func (h *DeviceHandler) ApprovalRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GrantInfo)
	r.Post("/approve", h.Approve)
	r.Post("/deny", h.Deny)
	return r
}

func (h *DeviceHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	resp, err := h.deviceAuth.IssueGrant(r.Context(), r.PostFormValue("client_id"), r.PostFormValue("scope"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Token implements RFC 8628 §3.4/§3.5: OAuth failures are 400s carrying an
// error code, success is the token payload.
func (h *DeviceHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	out, err := h.deviceAuth.ExchangeToken(
		r.Context(),
		r.PostFormValue("grant_type"),
		r.PostFormValue("device_code"),
		r.PostFormValue("client_id"),
	)
	if err != nil {
		log.Error().Err(err).Msg("token exchange failed")
		writeError(w, err)
		return
	}

	if out.ErrorCode != "" {
		writeJSON(w, http.StatusBadRequest, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *DeviceHandler) GrantInfo(w http.ResponseWriter, r *http.Request) {
	userCode := r.URL.Query().Get("user_code")
	if userCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_code is required"})
		return
	}

	grant, err := h.deviceAuth.GrantForUserCode(r.Context(), userCode)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userCode":  grant.UserCode,
		"clientId":  grant.ClientID,
		"scope":     grant.Scope,
		"status":    grant.Status,
		"expiresAt": grant.ExpiresAt,
	})
}

func (h *DeviceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.deviceAuth.Approve, "approved")
}

func (h *DeviceHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.deviceAuth.Deny, "denied")
}

func (h *DeviceHandler) decide(w http.ResponseWriter, r *http.Request, decision func(ctx context.Context, userCode, userID string) error, outcome string) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}

	var req struct {
		UserCode string `json:"user_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_code is required"})
		return
	}

	if err := decision(r.Context(), req.UserCode, user.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": outcome})
}
