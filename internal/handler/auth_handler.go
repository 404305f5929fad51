package handler

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ironlog/ironlog/internal/domain"
	"github.com/ironlog/ironlog/internal/middleware"
	"github.com/ironlog/ironlog/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService    *service.AuthService
	historyService *service.HistoryService
	engines        *service.EngineManager
	snapshots      domain.SnapshotStore
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, historyService *service.HistoryService, engines *service.EngineManager, snapshots domain.SnapshotStore) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		historyService: historyService,
		engines:        engines,
		snapshots:      snapshots,
	}
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	// Get Firebase ID token from Authorization header
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing Authorization header",
		})
	}

	// Extract token (format: "Bearer <token>")
	token := authHeader
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}

	resp, err := h.authService.Login(c.Context(), token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid firebase token",
		})
	}

	// Prime the offline bundle in the background; login must not block on
	// the history store.
	go func(userID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.historyService.Hydrate(ctx, userID); err != nil {
			log.Printf("login %s: bundle hydrate failed: %v", userID, err)
		}
	}(resp.UserID)

	return c.JSON(fiber.Map{
		"token":      resp.AccessToken,
		"expires_in": resp.ExpiresIn,
		"user": fiber.Map{
			"id": resp.UserID,
		},
	})
}

// Logout handles POST /v1/auth/logout. It stops the user's engine and wipes
// the locally cached bundle; queued mutations are the only local state that
// survives, so an unsynced workout is not lost by logging out.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing user identity",
		})
	}

	h.engines.Remove(userID)
	if err := h.snapshots.Delete(c.Context(), userID); err != nil {
		log.Printf("logout %s: snapshot delete failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to clear local state",
		})
	}

	return c.JSON(fiber.Map{"status": "logged_out"})
}
