package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mesh-intelligence/pantry/internal/auth"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      auth.User `json:"user"`
}

// token exchanges credentials for a bearer token.
func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.fail(w, r, types.ErrInvalidData)
		return
	}
	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.log.Infow("token refused", "email", req.Email)
		h.fail(w, r, err)
		return
	}
	token, expires, err := h.issuer.Issue(user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Infow("token issued", "user", user.ID, "role", user.Role)
	h.respond(w, r, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expires, User: user})
}

// authorize returns the caller's claims. Anonymous reads of public
// resources return nil claims and no error.
func (h *Handler) authorize(r *http.Request, res types.Resource, write bool) (*auth.Claims, error) {
	claims, err := h.issuer.FromRequest(r)
	if err == nil {
		return claims, nil
	}
	if !write && res.Public && r.Header.Get("Authorization") == "" {
		return nil, nil
	}
	return nil, err
}
