// Package auth provides password hashing, JWT token issuance and
// verification, and role checks for the catalog API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Role identifies an access level
type Role string

const (
	// RoleAdmin can manage the catalog and delete books
	RoleAdmin Role = "admin"
	// RoleMember can read and write books
	RoleMember Role = "member"
)

// Auth errors
var (
	// ErrInvalidCredentials indicates an unknown user or wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenInvalid indicates a malformed or badly signed token
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired indicates the token is past its expiry
	ErrTokenExpired = errors.New("token expired")

	// ErrForbidden indicates the caller's role does not permit the operation
	ErrForbidden = errors.New("forbidden")
)

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext password matches the hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// User is one API account.
type User struct {
	Username     string
	PasswordHash string
	Role         Role
}

// UserStore looks up users by username.
type UserStore interface {
	Lookup(username string) (*User, bool)
}

// StaticUserStore is an in-memory UserStore built from a fixed user set.
type StaticUserStore struct {
	users map[string]User
}

var _ UserStore = (*StaticUserStore)(nil)

// NewStaticUserStore creates a StaticUserStore from the given users.
func NewStaticUserStore(users ...User) *StaticUserStore {
	s := &StaticUserStore{users: make(map[string]User, len(users))}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

// Lookup returns the user with the given username.
func (s *StaticUserStore) Lookup(username string) (*User, bool) {
	u, ok := s.users[username]
	if !ok {
		return nil, false
	}
	return &u, true
}

// Claims are the JWT claims carried by an access token.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// RequireRole returns ErrForbidden unless the claims carry the given role.
func (c *Claims) RequireRole(role Role) error {
	if c.Role != role {
		return fmt.Errorf("%w: requires role %s", ErrForbidden, role)
	}
	return nil
}

// TokenIssuer issues and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption is a functional option for configuring TokenIssuer
type IssuerOption func(*TokenIssuer)

// WithTokenTTL sets the access token lifetime.
func WithTokenTTL(ttl time.Duration) IssuerOption {
	return func(i *TokenIssuer) {
		i.ttl = ttl
	}
}

// WithIssuerClock sets the time source (useful for tests).
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *TokenIssuer) {
		i.now = now
	}
}

// NewTokenIssuer creates a TokenIssuer signing with the given secret.
func NewTokenIssuer(secret []byte, opts ...IssuerOption) *TokenIssuer {
	i := &TokenIssuer{
		secret: secret,
		ttl:    30 * time.Minute,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue creates a signed access token for the user.
func (i *TokenIssuer) Issue(username string, role Role) (string, error) {
	now := i.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an access token, returning its claims.
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Authenticate checks credentials against the user store and issues a token.
func (i *TokenIssuer) Authenticate(store UserStore, username, password string) (string, *User, error) {
	user, ok := store.Lookup(username)
	if !ok || !VerifyPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	token, err := i.Issue(user.Username, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}
