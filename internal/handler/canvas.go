package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"whiteboard-backend/internal/cache"
	"whiteboard-backend/internal/storage"
)

// CanvasHandler serves the REST reads clients use to seed their editor
// before (or without) opening a websocket.
type CanvasHandler struct {
	store *storage.CanvasStore
	cache *cache.RedisClient // optional
}

// NewCanvasHandler creates a CanvasHandler.
func NewCanvasHandler(store *storage.CanvasStore, cacheClient *cache.RedisClient) *CanvasHandler {
	return &CanvasHandler{store: store, cache: cacheClient}
}

// GetShapes returns a project's persisted shapes in paint order.
func (h *CanvasHandler) GetShapes(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "projectId is required"})
	}

	shapes, err := h.store.LoadShapes(c.Context(), projectID)
	if err != nil {
		log.Printf("[Canvas] Failed to load shapes for project %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load shapes"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"shapes":  shapes,
	})
}

// GetRecentComments returns the recent comment feed, served from the Redis
// list when warm and falling back to Postgres otherwise.
func (h *CanvasHandler) GetRecentComments(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "projectId is required"})
	}

	limit := int64(c.QueryInt("limit", 50))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	if h.cache != nil {
		comments, err := h.cache.GetRecentComments(c.Context(), projectID, limit)
		if err == nil && len(comments) > 0 {
			total, err := h.cache.CommentCount(c.Context(), projectID)
			if err != nil {
				total = int64(len(comments))
			}
			return c.JSON(fiber.Map{
				"success":  true,
				"comments": comments,
				"total":    total,
				"source":   "cache",
			})
		}
		if err != nil {
			log.Printf("[Canvas] Comment cache read failed for project %s: %v", projectID, err)
		}
	}

	comments, err := h.store.LoadRecentComments(c.Context(), projectID, int(limit))
	if err != nil {
		log.Printf("[Canvas] Failed to load comments for project %s: %v", projectID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load comments"})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"comments": comments,
		"source":   "db",
	})
}
