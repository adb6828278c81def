package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"whiteboard-backend/internal/cache"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/protocol"
	"whiteboard-backend/internal/session"
	"whiteboard-backend/internal/store"
)

// inboundEvent is one queued mutation or ephemeral event with its origin.
type inboundEvent struct {
	origin *session.Session
	event  protocol.Inbound
}

// Room is the broadcast scope for one project. A single actor goroutine
// drains the inbound queue and processes each event to completion
// (persist, then apply, then broadcast), which serializes all shape state
// mutations for the project. Events from one connection arrive in read
// order, so per-connection FIFO holds; no total order across connections
// is promised.
type Room struct {
	id  string
	hub *Hub

	shapes  *store.ShapeStore
	inbound chan *inboundEvent

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	members map[string]*session.Session // session id -> session

	seedOnce sync.Once
	seedErr  error
}

func newRoom(projectID string, h *Hub) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		id:      projectID,
		hub:     h,
		shapes:  store.New(),
		inbound: make(chan *inboundEvent, h.opts.RoomBufferSize),
		ctx:     ctx,
		cancel:  cancel,
		members: make(map[string]*session.Session),
	}

	go r.run()
	return r
}

// ID returns the project id this room serves.
func (r *Room) ID() string {
	return r.id
}

// submit queues an event for the actor. A full queue drops the event; the
// alternative is stalling the connection read loop behind a slow persist.
func (r *Room) submit(ev *inboundEvent) {
	select {
	case r.inbound <- ev:
	default:
		log.Printf("[Room %s] Inbound buffer full, dropping %s from session %s",
			r.id, ev.event.Kind(), ev.origin.ID)
		r.hub.reject(ev.origin, ev.event.Kind(), "room is overloaded, retry")
	}
}

// addMember registers the session, acks the join, seeds the late joiner
// with the full canvas, and announces the arrival to existing members.
func (r *Room) addMember(sess *session.Session) {
	r.seedOnce.Do(r.seed)

	r.mu.Lock()
	r.members[sess.ID] = sess
	total := len(r.members)
	r.mu.Unlock()

	log.Printf("[Room %s] Added session %s (user %d), total: %d", r.id, sess.ID, sess.UserID, total)

	r.ack(sess)

	r.broadcast(protocol.EventUserJoined, protocol.UserJoinedPayload{
		UserID:    sess.UserID,
		SessionID: sess.ID,
		Nickname:  sess.Nickname,
	}, sess)
}

// ack sends the join acknowledgement plus the bulk canvas load.
func (r *Room) ack(sess *session.Session) {
	r.sendTo(sess, protocol.EventProjectJoined, protocol.JoinedPayload{ProjectID: r.id})
	r.sendTo(sess, protocol.EventDrawingBulkLoad, protocol.BulkLoadPayload{
		ProjectID: r.id,
		Shapes:    r.shapes.LoadAll(),
	})

	if r.seedErr != nil {
		r.sendTo(sess, protocol.EventOperationFailed, protocol.FailedPayload{
			Op:     protocol.EventProjectJoin,
			Reason: "failed to load persisted shapes, canvas may be incomplete",
		})
	}
}

// removeMember drops the session and announces the departure to whoever
// remains. Returns the remaining count and whether the session was present.
func (r *Room) removeMember(sess *session.Session) (int, bool) {
	r.mu.Lock()
	_, wasMember := r.members[sess.ID]
	if wasMember {
		delete(r.members, sess.ID)
	}
	remaining := len(r.members)
	r.mu.Unlock()

	if !wasMember {
		return remaining, false
	}

	log.Printf("[Room %s] Removed session %s (user %d), remaining: %d", r.id, sess.ID, sess.UserID, remaining)

	r.broadcast(protocol.EventUserLeft, protocol.UserLeftPayload{
		UserID:    sess.UserID,
		SessionID: sess.ID,
	}, nil)

	return remaining, true
}

func (r *Room) memberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// seed loads the persisted canvas into the authoritative store, once per
// room lifetime. On failure the room starts empty rather than refusing
// joins; joiners are notified via ack.
func (r *Room) seed() {
	ctx, cancelFn := context.WithTimeout(r.ctx, r.hub.opts.PersistTimeout)
	defer cancelFn()

	shapes, err := r.hub.storage.LoadShapes(ctx, r.id)
	if err != nil {
		log.Printf("[Room %s] Failed to load persisted shapes: %v", r.id, err)
		r.seedErr = err
		return
	}

	r.shapes.Replace(shapes)
	log.Printf("[Room %s] Seeded %d shapes", r.id, len(shapes))
}

// shutdown stops the actor. Pending queued events are abandoned.
func (r *Room) shutdown() {
	r.cancel()
	log.Printf("[Room %s] Shutdown complete", r.id)
}

// run is the room actor.
func (r *Room) run() {
	log.Printf("[Room %s] Actor started", r.id)
	defer log.Printf("[Room %s] Actor stopped", r.id)

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev := <-r.inbound:
			r.process(ev)
		}
	}
}

// process applies one event: persist, then apply to the shape store, then
// broadcast. A persistence failure suppresses both the apply and the
// broadcast and surfaces operation:failed to the origin only.
func (r *Room) process(ev *inboundEvent) {
	switch e := ev.event.(type) {
	case *protocol.UpdateDrawing:
		r.processUpdate(ev.origin, e)
	case *protocol.DeleteDrawing:
		r.processDelete(ev.origin, e)
	case *protocol.MoveCursor:
		r.processCursor(ev.origin, e)
	case *protocol.AddComment:
		r.processComment(ev.origin, e)
	case *protocol.CreateVersion:
		r.processVersion(ev.origin, e)
	default:
		log.Printf("[Room %s] Unhandled event kind %s", r.id, ev.event.Kind())
	}
}

func (r *Room) processUpdate(origin *session.Session, e *protocol.UpdateDrawing) {
	ctx, cancelFn := r.persistCtx()
	defer cancelFn()

	if err := r.hub.storage.PersistShape(ctx, r.id, origin.UserID, e.Shape); err != nil {
		log.Printf("[Room %s] Failed to persist shape %s: %v", r.id, e.Shape.ID, err)
		r.fail(origin, protocol.EventDrawingUpdate, "failed to save drawing")
		return
	}

	r.shapes.Put(e.Shape)
	r.broadcast(protocol.EventDrawingUpdated, e.Shape, origin)
}

func (r *Room) processDelete(origin *session.Session, e *protocol.DeleteDrawing) {
	ctx, cancelFn := r.persistCtx()
	defer cancelFn()

	if err := r.hub.storage.DeletePersistedShape(ctx, r.id, e.ShapeID); err != nil {
		log.Printf("[Room %s] Failed to delete shape %s: %v", r.id, e.ShapeID, err)
		r.fail(origin, protocol.EventDrawingDelete, "failed to delete drawing")
		return
	}

	r.shapes.Delete(e.ShapeID)
	r.broadcast(protocol.EventDrawingDeleted, protocol.DrawingDeletedPayload{ShapeID: e.ShapeID}, origin)
}

// processCursor relays cursor positions to everyone but the sender. No
// persistence and no replay: a late joiner has no cursor history.
func (r *Room) processCursor(origin *session.Session, e *protocol.MoveCursor) {
	r.broadcast(protocol.EventCursorMoved, protocol.CursorMovedPayload{
		UserID:    origin.UserID,
		SessionID: origin.ID,
		X:         e.X,
		Y:         e.Y,
	}, origin)
}

// processComment stamps a server-assigned id and timestamp, persists, and
// relays to the whole room including the origin; the broadcast doubles as
// the durability acknowledgement.
func (r *Room) processComment(origin *session.Session, e *protocol.AddComment) {
	comment := &model.Comment{
		ID:        uuid.New().String(),
		ProjectID: r.id,
		UserID:    origin.UserID,
		Content:   e.Content,
		X:         e.X,
		Y:         e.Y,
	}

	ctx, cancelFn := r.persistCtx()
	defer cancelFn()

	if err := r.hub.storage.SaveComment(ctx, comment); err != nil {
		log.Printf("[Room %s] Failed to save comment: %v", r.id, err)
		r.fail(origin, protocol.EventCommentAdd, "failed to save comment")
		return
	}

	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}

	// Feed cache is best-effort; Postgres already holds the record.
	if r.hub.cache != nil {
		go func() {
			cctx, ccancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer ccancel()

			entry := &cache.ProjectComment{
				ID:        comment.ID,
				ProjectID: comment.ProjectID,
				UserID:    comment.UserID,
				Nickname:  origin.Nickname,
				Content:   comment.Content,
				X:         comment.X,
				Y:         comment.Y,
				Timestamp: comment.CreatedAt,
			}
			if err := r.hub.cache.AddComment(cctx, r.id, entry); err != nil {
				log.Printf("[Room %s] Failed to cache comment: %v", r.id, err)
			}
		}()
	}

	r.broadcast(protocol.EventCommentAdded, protocol.CommentAddedPayload{
		ID:        comment.ID,
		ProjectID: comment.ProjectID,
		UserID:    comment.UserID,
		Nickname:  origin.Nickname,
		Content:   comment.Content,
		X:         comment.X,
		Y:         comment.Y,
		CreatedAt: comment.CreatedAt.Format(time.RFC3339),
	}, nil)
}

// processVersion stamps and persists a snapshot, then announces it to the
// whole room. The snapshot blob is not echoed back.
func (r *Room) processVersion(origin *session.Session, e *protocol.CreateVersion) {
	name := e.Name
	if name == "" {
		name = "Snapshot"
	}

	version := &model.Version{
		ID:        uuid.New().String(),
		ProjectID: r.id,
		UserID:    origin.UserID,
		Name:      name,
		Snapshot:  string(e.Snapshot),
	}

	ctx, cancelFn := r.persistCtx()
	defer cancelFn()

	if err := r.hub.storage.SaveVersion(ctx, version); err != nil {
		log.Printf("[Room %s] Failed to save version: %v", r.id, err)
		r.fail(origin, protocol.EventVersionCreate, "failed to save version")
		return
	}

	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now()
	}

	r.broadcast(protocol.EventVersionCreated, protocol.VersionCreatedPayload{
		ID:        version.ID,
		ProjectID: version.ProjectID,
		UserID:    version.UserID,
		Name:      version.Name,
		CreatedAt: version.CreatedAt.Format(time.RFC3339),
	}, nil)
}

// persistCtx bounds a storage call. Deliberately not derived from the room
// context: an in-flight write finishes even if the room is torn down
// mid-operation, and the result is still broadcast to remaining members.
func (r *Room) persistCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.hub.opts.PersistTimeout)
}

// broadcast fans a message out to every member except `except` (nil sends
// to the whole room). The payload is marshaled once.
func (r *Room) broadcast(kind string, payload any, except *session.Session) {
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		log.Printf("[Room %s] Failed to marshal %s: %v", r.id, kind, err)
		return
	}

	r.mu.RLock()
	targets := make([]*session.Session, 0, len(r.members))
	for _, member := range r.members {
		if except != nil && member.ID == except.ID {
			continue
		}
		targets = append(targets, member)
	}
	r.mu.RUnlock()

	for _, member := range targets {
		member.Send(data)
	}
}

// sendTo delivers one message to one session.
func (r *Room) sendTo(sess *session.Session, kind string, payload any) {
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		log.Printf("[Room %s] Failed to marshal %s: %v", r.id, kind, err)
		return
	}
	sess.Send(data)
}

// fail surfaces a storage error to the originating session only.
func (r *Room) fail(sess *session.Session, op, reason string) {
	r.sendTo(sess, protocol.EventOperationFailed, protocol.FailedPayload{
		Op:     op,
		Reason: reason,
	})
}
