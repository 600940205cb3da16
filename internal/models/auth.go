package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenRequest is the sign-in payload. The caller is assumed to be
// authenticated upstream; this endpoint only mints an access token and
// records the identity on first contact.
type TokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name"`
}

// TokenResponse returns the issued access token. There is no refresh
// mechanism: expiry forces re-authentication.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}

// JWTClaims is the access-token payload. The subject is the user's
// email; roles are deliberately absent and resolved against the user
// directory on every request.
type JWTClaims struct {
	jwt.RegisteredClaims
}

// PromoteRoleRequest assigns a privileged role to a subject.
type PromoteRoleRequest struct {
	Role UserRole `json:"role" validate:"required"`
}
