package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"authorship-service/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleAdmin grants access to the admin API
const RoleAdmin = "admin"

var (
	ErrInvalidToken = fmt.Errorf("invalid token: %w", apperr.ErrUnauthorized)
	ErrExpiredToken = fmt.Errorf("token has expired: %w", apperr.ErrUnauthorized)
	ErrMissingToken = fmt.Errorf("missing bearer token: %w", apperr.ErrUnauthorized)
)

// Claims are the session claims issued by the identity provider
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// UserID returns the subject
func (c *Claims) UserID() string {
	return c.Subject
}

// IsAdmin reports whether the session carries the admin role
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Verifier validates HS256 session tokens
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates a raw token
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyHeader extracts and verifies a "Bearer <token>" Authorization header
func (v *Verifier) VerifyHeader(header string) (*Claims, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return nil, ErrMissingToken
	}
	return v.Verify(strings.TrimSpace(token))
}

// Sign issues a token for the given user. Sessions are normally issued by the
// identity provider; this is used by tooling and tests.
func (v *Verifier) Sign(userID, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Role:  role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
