package handler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/hub"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/protocol"
	"whiteboard-backend/internal/session"
)

// CollabWSHandler owns the websocket side of a collaboration session: one
// read loop feeding the hub, one write pump draining the session's
// outbound queue, and a presence heartbeat.
type CollabWSHandler struct {
	hub      *hub.Hub
	presence *presence.Manager // optional
	cfg      *config.Config
	serverID string
}

// NewCollabWSHandler creates the handler. presenceManager may be nil when
// Redis is not configured.
func NewCollabWSHandler(h *hub.Hub, presenceManager *presence.Manager, cfg *config.Config, serverID string) *CollabWSHandler {
	return &CollabWSHandler{
		hub:      h,
		presence: presenceManager,
		cfg:      cfg,
		serverID: serverID,
	}
}

// HandleWebSocket runs one authenticated connection. The upgrade middleware
// has already validated the token and stashed the claims in Locals; a
// connection that reaches this point is bound to a user for its lifetime.
func (h *CollabWSHandler) HandleWebSocket(c *websocket.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[CollabWS] Recovered from panic: %v", r)
		}
	}()

	userID, ok1 := c.Locals("userID").(int64)
	nickname, ok2 := c.Locals("nickname").(string)
	if !ok1 || !ok2 {
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"operation:rejected","payload":{"reason":"invalid session"}}`))
		c.Close()
		return
	}

	sess := session.New(userID, nickname, h.cfg.Collab.SessionBufferSize)
	log.Printf("[CollabWS] Connected: session=%s user=%d", sess.ID, userID)

	// Teardown always removes room membership, whatever killed the
	// connection.
	defer func() {
		h.hub.Disconnect(sess)
		sess.Close()
		h.setOffline(userID)
		c.Close()
		log.Printf("[CollabWS] Disconnected: session=%s user=%d after %s", sess.ID, userID, sess.Duration())
	}()

	h.setOnline(userID)

	go h.writePump(c, sess)
	go h.heartbeat(sess)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			break
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedEvent) {
				log.Printf("[CollabWS] Malformed event from session %s: %v", sess.ID, err)
				h.rejectMalformed(sess, err)
				continue
			}
			log.Printf("[CollabWS] Decode error from session %s: %v", sess.ID, err)
			continue
		}

		h.hub.Dispatch(sess, ev)
	}
}

// writePump drains the session's outbound queue onto the wire. The queue
// is the only writer path, so no write mutex is needed here.
func (h *CollabWSHandler) writePump(c *websocket.Conn, sess *session.Session) {
	for {
		select {
		case <-sess.Context().Done():
			return
		case data, ok := <-sess.Outbound():
			if !ok {
				return
			}
			c.SetWriteDeadline(time.Now().Add(h.cfg.WebSocket.WriteTimeout))
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[CollabWS] Write failed for session %s: %v", sess.ID, err)
				return
			}
		}
	}
}

// heartbeat refreshes the presence TTL while the connection lives.
func (h *CollabWSHandler) heartbeat(sess *session.Session) {
	if h.presence == nil {
		return
	}

	ticker := time.NewTicker(h.cfg.Collab.PresenceHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-sess.Context().Done():
			return
		case <-ticker.C:
			ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
			if err := h.presence.Heartbeat(ctx, sess.UserID); err != nil {
				log.Printf("[CollabWS] Presence heartbeat failed for user %d: %v", sess.UserID, err)
			}
			cancelFn()
		}
	}
}

func (h *CollabWSHandler) setOnline(userID int64) {
	if h.presence == nil {
		return
	}
	ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFn()
	if err := h.presence.SetOnline(ctx, userID, "", h.serverID); err != nil {
		log.Printf("[CollabWS] Failed to set presence for user %d: %v", userID, err)
	}
}

func (h *CollabWSHandler) setOffline(userID int64) {
	if h.presence == nil {
		return
	}
	ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFn()
	if err := h.presence.SetOffline(ctx, userID); err != nil {
		log.Printf("[CollabWS] Failed to clear presence for user %d: %v", userID, err)
	}
}

func (h *CollabWSHandler) rejectMalformed(sess *session.Session, cause error) {
	data, err := protocol.Encode(protocol.EventOperationRejected, protocol.RejectedPayload{
		Op:     "unknown",
		Reason: cause.Error(),
	})
	if err != nil {
		return
	}
	sess.Send(data)
}
