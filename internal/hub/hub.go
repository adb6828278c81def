// Package hub is the realtime collaboration core: the room registry mapping
// projects to connected sessions, and the broadcast router that applies
// mutations to the authoritative shape state, persists them, and fans them
// out to the rest of the room.
package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"whiteboard-backend/internal/cache"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/protocol"
	"whiteboard-backend/internal/session"
)

// Storage is the persistence collaborator. Persistence is part of the
// commit: a mutation is applied and broadcast only after its storage call
// succeeds.
type Storage interface {
	PersistShape(ctx context.Context, projectID string, userID int64, shape protocol.Shape) error
	DeletePersistedShape(ctx context.Context, projectID, shapeID string) error
	LoadShapes(ctx context.Context, projectID string) ([]protocol.Shape, error)
	SaveComment(ctx context.Context, comment *model.Comment) error
	SaveVersion(ctx context.Context, version *model.Version) error
}

// Options tunes the hub.
type Options struct {
	// RoomBufferSize is the per-room inbound queue length.
	RoomBufferSize int
	// PersistTimeout bounds every storage call.
	PersistTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.RoomBufferSize <= 0 {
		o.RoomBufferSize = 256
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	return o
}

// Hub owns all rooms and session membership. A session is in at most one
// room at a time; joining a new room implicitly leaves the previous one.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	members map[*session.Session]*Room

	storage Storage
	cache   *cache.RedisClient // optional recent-comment feed
	opts    Options
}

// New creates a Hub. cacheClient may be nil; the comment feed is then
// skipped and only Postgres holds comments.
func New(storage Storage, cacheClient *cache.RedisClient, opts Options) *Hub {
	return &Hub{
		rooms:   make(map[string]*Room),
		members: make(map[*session.Session]*Room),
		storage: storage,
		cache:   cacheClient,
		opts:    opts.withDefaults(),
	}
}

// Dispatch routes one validated inbound event. Join/leave are handled by
// the registry; everything else requires membership of the event's project
// room and is queued on that room's actor.
func (h *Hub) Dispatch(sess *session.Session, ev protocol.Inbound) {
	switch e := ev.(type) {
	case *protocol.JoinProject:
		h.Join(sess, e.ProjectID)
		return
	case *protocol.LeaveProject:
		h.Leave(sess, e.ProjectID)
		return
	}

	room := h.roomOf(sess)
	if room == nil || room.id != ev.Project() {
		// A session cannot forge edits to a room it has not joined.
		log.Printf("[Hub] Rejected %s from session %s (user %d): not a member of project %s",
			ev.Kind(), sess.ID, sess.UserID, ev.Project())
		h.reject(sess, ev.Kind(), "not a member of this project")
		return
	}

	room.submit(&inboundEvent{origin: sess, event: ev})
}

// Join adds a session to a project's room, leaving its previous room first.
// Re-joining the current room only re-sends the ack and bulk load.
func (h *Hub) Join(sess *session.Session, projectID string) {
	h.mu.Lock()

	prev := h.members[sess]
	if prev != nil && prev.id == projectID {
		h.mu.Unlock()
		prev.ack(sess)
		return
	}

	room, exists := h.rooms[projectID]
	if !exists {
		room = newRoom(projectID, h)
		h.rooms[projectID] = room
		log.Printf("[Hub] Created room: %s", projectID)
	}
	h.members[sess] = room
	h.mu.Unlock()

	if prev != nil {
		h.departRoom(sess, prev)
	}

	room.addMember(sess)
}

// Leave removes a session from a project's room. No-op when the session is
// not a member.
func (h *Hub) Leave(sess *session.Session, projectID string) {
	h.mu.Lock()
	room := h.members[sess]
	if room == nil || room.id != projectID {
		h.mu.Unlock()
		return
	}
	delete(h.members, sess)
	h.mu.Unlock()

	h.departRoom(sess, room)
}

// Disconnect is the implicit leave that always runs on connection
// teardown, whatever the cause, so no stale membership survives.
func (h *Hub) Disconnect(sess *session.Session) {
	h.mu.Lock()
	room := h.members[sess]
	if room == nil {
		h.mu.Unlock()
		return
	}
	delete(h.members, sess)
	h.mu.Unlock()

	h.departRoom(sess, room)
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// roomOf returns the session's current room, nil when unjoined.
func (h *Hub) roomOf(sess *session.Session) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.members[sess]
}

// departRoom removes the session from the room's member set, announces the
// departure, and destroys the room once empty.
func (h *Hub) departRoom(sess *session.Session, room *Room) {
	if remaining, wasMember := room.removeMember(sess); wasMember && remaining == 0 {
		h.removeRoom(room.id)
	}
}

// removeRoom destroys a room if it is still empty.
func (h *Hub) removeRoom(projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[projectID]
	if !exists {
		return
	}
	if room.memberCount() > 0 {
		return
	}
	// A joiner can be registered here before it lands in the room's own
	// member set; destroying the room now would strand that session on a
	// stopped actor. Its eventual departure retries the removal.
	for _, r := range h.members {
		if r == room {
			return
		}
	}

	room.shutdown()
	delete(h.rooms, projectID)
	log.Printf("[Hub] Removed room: %s", projectID)
}

// reject sends an explicit operation:rejected notice to the origin.
func (h *Hub) reject(sess *session.Session, op, reason string) {
	data, err := protocol.Encode(protocol.EventOperationRejected, protocol.RejectedPayload{
		Op:     op,
		Reason: reason,
	})
	if err != nil {
		log.Printf("[Hub] Failed to marshal rejection: %v", err)
		return
	}
	sess.Send(data)
}
