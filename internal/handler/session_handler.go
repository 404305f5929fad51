package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ironlog/ironlog/internal/domain"
	"github.com/ironlog/ironlog/internal/middleware"
	"github.com/ironlog/ironlog/internal/service"
)

// SessionHandler exposes the per-user workout session engine over HTTP. Each
// request resolves the caller's engine from the manager; the engine enforces
// the offline-first semantics, the handler only translates.
type SessionHandler struct {
	engines        *service.EngineManager
	historyService *service.HistoryService
	conn           domain.Connectivity
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(engines *service.EngineManager, historyService *service.HistoryService, conn domain.Connectivity) *SessionHandler {
	return &SessionHandler{
		engines:        engines,
		historyService: historyService,
		conn:           conn,
	}
}

func (h *SessionHandler) engine(c *fiber.Ctx) (*service.Engine, error) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return nil, domain.ErrNoUserIdentity
	}
	return h.engines.ForUser(c.Context(), userID)
}

func sessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNoUserIdentity):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user identity"})
	case errors.Is(err, domain.ErrNoActiveSession):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active session"})
	case errors.Is(err, domain.ErrExerciseIndex):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "exercise index out of range"})
	case errors.Is(err, domain.ErrBadReorder):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "order must be a permutation of the current exercises"})
	case errors.Is(err, domain.ErrInvalidID):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "exercise id is required"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

// GetSession handles GET /v1/session
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	eng, err := h.engine(c)
	if err != nil {
		return sessionError(c, err)
	}
	return c.JSON(eng.Service.Current())
}

// StartWorkoutRequest is the body for POST /v1/session/start
type StartWorkoutRequest struct {
	Day       int                     `json:"day"`
	Exercises []*domain.ExerciseState `json:"exercises"`
}

// StartWorkout handles POST /v1/session/start
func (h *SessionHandler) StartWorkout(c *fiber.Ctx) error {
	eng, err := h.engine(c)
	if err != nil {
		return sessionError(c, err)
	}

	var req StartWorkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	session, err := eng.Service.StartWorkout(c.Context(), req.Day, req.Exercises)
	if err != nil {
		return sessionError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// UpdateExerciseRequest is the body for PATCH /v1/session/exercises/:index
type UpdateExerciseRequest struct {
	LoggedSets []*domain.LoggedSet `json:"logged_sets"`
	Success    bool                `json:"success"`
	Skipped    bool                `json:"skipped"`
}

// UpdateExercise handles PATCH /v1/session/exercises/:index
func (h *SessionHandler) UpdateExercise(c *fiber.Ctx) error {
	eng, err := h.engine(c)
	if err != nil {
		return sessionError(c, err)
	}

	index, err := c.ParamsInt("index")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid exercise index"})
	}

	var req UpdateExerciseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	if err := eng.Service.UpdateExercise(c.Context(), index, req.LoggedSets, req.Success, req.Skipped); err != nil {
		return sessionError(c, err)
	}
	return c.JSON(eng.Service.Current())
}

// AddExercise handles POST /v1/session/exercises
func (h *SessionHandler) AddExercise(c *fiber.Ctx) error {
	eng, err := h.engine(c)
	if err != nil {
		return sessionError(c, err)
	}

	var req domain.ExerciseState
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	if err := eng.Service.AddExercise(c.Context(), &req); err != nil {
		return sessionError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(eng.Service.Current())
}

// ReorderRequest is the body for PUT /v1/session/exercises/order
type ReorderRequest struct {
	Order []string `json:"order"`
}

// ReorderExercises handles PUT /v1/session/exercises/order
func (h *SessionHandler) ReorderExercises(c *fiber.Ctx) error {
	eng, err := h.engine(c)
	if err != nil {
		return sessionError(c, err)
	}

	var req ReorderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	if err := eng.Service.ReorderExercises(c.Context(), req.Order); err != nil {
		return sessionError(c, err)
	}
	return c.JSON(eng.Service.Current())
}

// EndWorkout handles POST /v1/session/end
func (h *SessionHandler) EndWorkout(c *fiber.Ctx) error {
	eng, err := h.engine(c)
	if err != nil {
		return sessionError(c, err)
	}

	if err := eng.Service.EndWorkout(c.Context()); err != nil {
		return sessionError(c, err)
	}
	return c.JSON(fiber.Map{"message": "workout ended"})
}

// Status handles GET /v1/session/status
func (h *SessionHandler) Status(c *fiber.Ctx) error {
	eng, err := h.engine(c)
	if err != nil {
		return sessionError(c, err)
	}

	userID := middleware.GetUserID(c)
	depth, err := eng.Drainer.QueueDepth(c.Context())
	if err != nil {
		return sessionError(c, err)
	}

	session := eng.Service.Current()
	return c.JSON(fiber.Map{
		"user_id":       userID,
		"online":        h.conn.Online(),
		"queue_depth":   depth,
		"degraded":      eng.Service.Degraded(),
		"active":        session.Active(),
		"timer_seconds": session.TimerSeconds,
	})
}

// ListLogs handles GET /v1/logs
func (h *SessionHandler) ListLogs(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return sessionError(c, domain.ErrNoUserIdentity)
	}

	logs, err := h.historyService.Logs(c.Context(), userID)
	if err != nil {
		return sessionError(c, err)
	}
	return c.JSON(logs)
}

// SaveLog handles POST /v1/logs
func (h *SessionHandler) SaveLog(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return sessionError(c, domain.ErrNoUserIdentity)
	}

	var req domain.WorkoutLog
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	req.UserID = userID

	saved, err := h.historyService.SaveLog(c.Context(), &req)
	if err != nil {
		return sessionError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

// Recommendations handles GET /v1/recommendations?day=N
func (h *SessionHandler) Recommendations(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return sessionError(c, domain.ErrNoUserIdentity)
	}

	day := c.QueryInt("day", -1)
	if day < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "day query parameter is required"})
	}

	recs, err := h.historyService.Recommendations(c.Context(), userID, day)
	if err != nil {
		return sessionError(c, err)
	}
	return c.JSON(recs)
}
