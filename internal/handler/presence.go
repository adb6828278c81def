package handler

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"whiteboard-backend/internal/presence"
)

// PresenceReader is the read side of presence tracking.
type PresenceReader interface {
	Get(ctx context.Context, userID int64) (*presence.Data, error)
	GetMulti(ctx context.Context, userIDs []int64) (map[int64]*presence.Data, error)
}

// PresenceHandler serves presence lookups for roster views.
type PresenceHandler struct {
	presence PresenceReader // nil when Redis is not configured
}

// NewPresenceHandler creates a PresenceHandler.
func NewPresenceHandler(p PresenceReader) *PresenceHandler {
	return &PresenceHandler{presence: p}
}

// GetUserPresence returns one user's presence. An expired or missing record
// reads as offline rather than an error.
func (h *PresenceHandler) GetUserPresence(c *fiber.Ctx) error {
	if h.presence == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "presence tracking is not enabled",
		})
	}

	userID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	data, err := h.presence.Get(c.Context(), userID)
	if err != nil {
		log.Printf("[Presence] Lookup failed for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read presence"})
	}

	if data == nil {
		data = &presence.Data{UserID: userID, Status: presence.StatusOffline}
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"presence": data,
	})
}

// GetUsersPresence returns presence for a comma-separated id list in one
// round trip. Users without a record are reported offline.
func (h *PresenceHandler) GetUsersPresence(c *fiber.Ctx) error {
	if h.presence == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "presence tracking is not enabled",
		})
	}

	idsParam := c.Query("ids")
	if idsParam == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ids query parameter is required"})
	}

	parts := strings.Split(idsParam, ",")
	if len(parts) > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "too many ids, max 100"})
	}

	userIDs := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id: " + part})
		}
		userIDs = append(userIDs, id)
	}

	found, err := h.presence.GetMulti(c.Context(), userIDs)
	if err != nil {
		log.Printf("[Presence] Bulk lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read presence"})
	}

	results := make([]*presence.Data, 0, len(userIDs))
	for _, id := range userIDs {
		data, ok := found[id]
		if !ok {
			data = &presence.Data{UserID: id, Status: presence.StatusOffline}
		}
		results = append(results, data)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"presence": results,
	})
}
