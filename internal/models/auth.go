package models

import "github.com/golang-jwt/jwt/v5"

// UserRole is carried in access tokens.
type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

// JWTClaims represents the JWT payload for access tokens. Tokens are
// issued by the identity provider; this service only verifies them.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}
