package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/orbital-labs/orbital/internal/config"
	"github.com/orbital-labs/orbital/internal/middleware"
	"github.com/orbital-labs/orbital/internal/model"
	"github.com/orbital-labs/orbital/internal/service"
)

// PortalHandler owns the operator-facing auth endpoints: register, login,
// logout. A portal session is the identity that approves device grants.
type PortalHandler struct {
	auth         *service.AuthService
	isProduction bool
}

func NewPortalHandler(auth *service.AuthService, isProduction bool) *PortalHandler {
	return &PortalHandler{
		auth:         auth,
		isProduction: isProduction,
	}
}

func (h *PortalHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	return r
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

func (h *PortalHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	_, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setCookie(w, token)
	writeJSON(w, http.StatusCreated, userPayload(user))
}

func (h *PortalHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	user, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setCookie(w, token)
	log.Info().Str("userId", user.ID).Msg("portal login")
	writeJSON(w, http.StatusOK, userPayload(user))
}

func (h *PortalHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.PortalSessionCookie); err == nil {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			log.Warn().Err(err).Msg("portal logout failed")
		}
	}

	middleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *PortalHandler) setCookie(w http.ResponseWriter, token string) {
	middleware.SetSessionCookie(w, token, int(config.SessionLifetime.Seconds()), h.isProduction)
}

func userPayload(user *model.User) map[string]any {
	return map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	}
}
