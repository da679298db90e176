// Package auth issues and validates operator bearer tokens for the control API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Operator roles. Viewers may only read; operators may also act.
const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

const issuer = "parley"

// Claims holds the JWT token payload. The subject is the operator name.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

var (
	// ErrInvalidToken is returned when a JWT cannot be parsed or has expired.
	ErrInvalidToken = errors.New("auth: invalid or expired token") //nolint:gochecknoglobals // sentinel error

	// ErrInvalidRole is returned when a token is requested for an unknown role.
	ErrInvalidRole = errors.New("auth: invalid role") //nolint:gochecknoglobals // sentinel error
)

// ValidRole reports whether role is one of the operator roles.
func ValidRole(role string) bool {
	return role == RoleOperator || role == RoleViewer
}

// IssueToken creates a signed operator token.
func IssueToken(secret, operator, role string, ttl time.Duration) (string, error) {
	if operator == "" {
		return "", errors.New("auth.IssueToken: operator name required")
	}
	if !ValidRole(role) {
		return "", fmt.Errorf("auth.IssueToken: %q: %w", role, ErrInvalidRole)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.IssueToken: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT token string. Returns the embedded claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	if !token.Valid || !ValidRole(claims.Role) {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	return claims, nil
}
