package handler

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"whiteboard-backend/internal/cache"
	"whiteboard-backend/internal/database"
)

// HealthHandler reports per-dependency liveness. Redis being down only
// degrades the comment feed and presence, so it never fails the check.
type HealthHandler struct {
	db    *gorm.DB
	cache *cache.RedisClient // optional
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db *gorm.DB, cacheClient *cache.RedisClient) *HealthHandler {
	return &HealthHandler{db: db, cache: cacheClient}
}

// Health returns 200 while Postgres is reachable, 503 otherwise.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	dbStatus := "up"
	if h.db == nil {
		dbStatus = "down"
	} else if err := database.Ping(h.db); err != nil {
		dbStatus = "down"
	}

	redisStatus := "disabled"
	if h.cache != nil {
		redisStatus = "up"
		if err := h.cache.Health(c.Context()); err != nil {
			redisStatus = "down"
		}
	}

	status := "ok"
	code := fiber.StatusOK
	if dbStatus == "down" {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"database": dbStatus,
		"redis":    redisStatus,
	})
}
