package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// IronLogClaims represents custom JWT claims for IronLog auth
type IronLogClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
