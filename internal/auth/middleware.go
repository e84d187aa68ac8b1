package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SessionCookie holds the admin session token.
const SessionCookie = "pantry_session"

type contextKey string

const claimsKey contextKey = "claims"

// ContextWithClaims returns a copy of ctx carrying claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFrom returns the claims stored by the auth middleware.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// FromRequest reads and verifies a bearer token. It returns ErrUnauthorized
// when no token is present.
func (i *Issuer) FromRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrUnauthorized
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, ErrUnauthorized
	}
	return i.Parse(token)
}

// RequireBearer rejects requests without a valid bearer token by calling
// deny; otherwise the claims are stored in the request context.
func (i *Issuer) RequireBearer(deny func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := i.FromRequest(r)
			if err != nil {
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireSession redirects requests without a valid session cookie to
// loginPath, passing the original URL as next.
func (i *Issuer) RequireSession(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := i.fromCookie(r)
			if err != nil {
				target := loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

func (i *Issuer) fromCookie(r *http.Request) (*Claims, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil, ErrUnauthorized
	}
	return i.Parse(c.Value)
}

// SetSession stores token in the session cookie scoped to path.
func SetSession(w http.ResponseWriter, r *http.Request, path, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession expires the session cookie scoped to path.
func ClearSession(w http.ResponseWriter, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
