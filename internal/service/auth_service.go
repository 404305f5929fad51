package service

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ironlog/ironlog/internal/domain"
)

// FirebaseAuthClient defines the interface for Firebase Auth operations
// This allows mocking for tests
type FirebaseAuthClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AuthService exchanges a Firebase ID token for an engine-minted JWT. The
// engine JWT is what the session routes verify; Firebase is only consulted
// at login.
type AuthService struct {
	authClient FirebaseAuthClient
	jwtSecret  string
	accessTTL  time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(authClient FirebaseAuthClient, jwtSecret string, accessTTL time.Duration) *AuthService {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &AuthService{authClient: authClient, jwtSecret: jwtSecret, accessTTL: accessTTL}
}

// LoginResponse is returned on a successful token exchange.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

// Login verifies the Firebase ID token and mints an IronLog access token
// carrying the Firebase UID.
func (s *AuthService) Login(ctx context.Context, idToken string) (*LoginResponse, error) {
	decoded, err := s.authClient.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("firebase token verification failed: %w", err)
	}

	email, _ := decoded.Claims["email"].(string)
	now := time.Now()
	claims := domain.IronLogClaims{
		UserID: decoded.UID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   decoded.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "ironlog",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &LoginResponse{
		AccessToken: signed,
		UserID:      decoded.UID,
		ExpiresIn:   int64(s.accessTTL.Seconds()),
	}, nil
}
