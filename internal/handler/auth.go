package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/newapi-sidecar/sidecar/internal/auth"
)

// AuthHandler serves the admin login surface (spec.md §6.3). The gateway's
// own end-user login is explicitly out of scope (spec.md §1); this is the
// side-car's single admin session.
type AuthHandler struct {
	svc       *auth.Service
	expiryHrs int
}

// NewAuthHandler constructs the admin-login handler.
func NewAuthHandler(svc *auth.Service, expiryHours int) *AuthHandler {
	return &AuthHandler{svc: svc, expiryHrs: expiryHours}
}

type loginRequest struct {
	Password string `json:"password"`
}

// Login checks the supplied password and issues a signed JWT on success.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	token, err := h.svc.Login(req.Password)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid password")
		return
	}

	expiresAt := time.Now().Add(time.Duration(h.expiryHrs) * time.Hour)
	WriteJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

// Logout is a stateless no-op: the JWT simply expires client-side.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	WriteMessage(w, http.StatusOK, "logged out")
}
