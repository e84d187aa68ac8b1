// Package auth manages pantry users and the tokens that authenticate them.
//
// Users are records of the internal users resource with a bcrypt password
// hash. A successful login yields an HS256 JWT that the API reads from the
// Authorization header and the admin UI keeps in a session cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

const passwordHashField = "password_hash"

// Authentication errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("authentication required")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrForbidden          = errors.New("permission denied")
)

// User is the public view of a users record.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

func userFromRecord(rec types.Record) User {
	return User{
		ID:    rec.ID(),
		Email: rec.String("email"),
		Name:  rec.String("name"),
		Role:  rec.String("role"),
	}
}

// Users creates and authenticates users stored in the users resource.
type Users struct {
	tables types.Tables
	// Cost is the bcrypt cost used for new hashes.
	Cost int
}

// NewUsers returns a Users backed by the users table of tables.
func NewUsers(tables types.Tables) *Users {
	return &Users{tables: tables, Cost: bcrypt.DefaultCost}
}

func (u *Users) table() (types.Table, error) {
	return u.tables.Table(resources.Users)
}

// Create adds a user. An empty role defaults to editor. Invalid input and a
// taken email are reported as a *types.ValidationError.
func (u *Users) Create(ctx context.Context, email, name, role, password string) (User, error) {
	tbl, err := u.table()
	if err != nil {
		return User{}, err
	}
	input := map[string]any{"email": normalizeEmail(email), "name": name}
	if role != "" {
		input["role"] = role
	}
	rec, err := tbl.Resource().Coerce(input, false)
	verr, _ := types.AsValidationError(err)
	if err != nil && verr == nil {
		return User{}, err
	}
	if msg := checkPassword(password); msg != "" {
		if verr == nil {
			verr = &types.ValidationError{}
		}
		verr.Add("password", msg)
	}
	if !verr.Empty() {
		return User{}, verr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.Cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	rec[passwordHashField] = string(hash)

	id, err := tbl.Set(ctx, "", rec)
	if err != nil {
		return User{}, err
	}
	rec[types.ColumnID] = id
	return userFromRecord(rec), nil
}

// SetPassword replaces the password of the user with the given id.
func (u *Users) SetPassword(ctx context.Context, id, password string) error {
	if msg := checkPassword(password); msg != "" {
		verr := &types.ValidationError{}
		verr.Add("password", msg)
		return verr
	}
	tbl, err := u.table()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.Cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = tbl.Set(ctx, id, types.Record{passwordHashField: string(hash)})
	return err
}

// Get returns the user with the given id.
func (u *Users) Get(ctx context.Context, id string) (User, error) {
	tbl, err := u.table()
	if err != nil {
		return User{}, err
	}
	rec, err := tbl.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	return userFromRecord(rec), nil
}

// Count returns the number of users.
func (u *Users) Count(ctx context.Context) (int, error) {
	tbl, err := u.table()
	if err != nil {
		return 0, err
	}
	return tbl.Count(ctx, nil)
}

// dummyHash is compared against when no user matches, so that unknown
// emails take as long as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("pantry-no-such-user"), bcrypt.DefaultCost)

// Authenticate returns the user whose email and password match.
// Every failure returns ErrInvalidCredentials.
func (u *Users) Authenticate(ctx context.Context, email, password string) (User, error) {
	tbl, err := u.table()
	if err != nil {
		return User{}, err
	}
	page, err := tbl.Fetch(ctx, types.Query{Filter: map[string]any{"email": normalizeEmail(email)}, Limit: 1})
	if err != nil {
		return User{}, err
	}
	if len(page.Records) == 0 {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return User{}, ErrInvalidCredentials
	}
	rec := page.Records[0]
	if err := bcrypt.CompareHashAndPassword([]byte(rec.String(passwordHashField)), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return userFromRecord(rec), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkPassword returns a validation message, or "" when password is
// acceptable. bcrypt ignores bytes past 72.
func checkPassword(password string) string {
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return fmt.Sprintf("must be at least %d characters", MinPasswordLength)
	case len(password) > 72:
		return "must be at most 72 bytes"
	}
	return ""
}
