package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the local mirror of an identity owned by the identity provider.
// The ID is immutable once mirrored.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name,omitempty" db:"name"`
	Image     string    `json:"image,omitempty" db:"image"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UpdateMeRequest is the PATCH /api/app/me payload
type UpdateMeRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=120"`
	Image *string `json:"image" validate:"omitempty,url"`
}

// TokenClaims are the identity provider's session claims. The registered
// claims carry expiry; UserID mirrors the subject.
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Image  string `json:"image,omitempty"`
	Type   string `json:"type"` // "session"
	jwt.RegisteredClaims
}
