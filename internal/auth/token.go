package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mesh-intelligence/pantry/internal/resources"
)

// issuerName is the iss claim of every pantry token.
const issuerName = "pantry"

// Claims are carried by pantry tokens. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserID returns the subject of the token.
func (c *Claims) UserID() string {
	return c.Subject
}

// IsAdmin reports whether the token grants the admin role.
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == resources.RoleAdmin
}

// CanDelete reports whether the holder may delete records. Editors may
// create and update but not delete.
func (c *Claims) CanDelete() bool {
	return c.IsAdmin()
}

// Issuer signs and verifies tokens with a shared HS256 secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer whose tokens are valid for ttl.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// TTL returns how long issued tokens stay valid.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a signed token for u and its expiry.
func (i *Issuer) Issue(u User) (string, time.Time, error) {
	now := i.now().UTC()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: u.Email,
		Role:  u.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies a token and returns its claims. Every failure wraps
// ErrInvalidToken.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// IsAuthError reports whether err means the caller is not authenticated.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrInvalidCredentials)
}
