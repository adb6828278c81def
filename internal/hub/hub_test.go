package hub_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"whiteboard-backend/internal/hub"
	"whiteboard-backend/internal/protocol"
	"whiteboard-backend/internal/session"
)

const sessionBuffer = 32

func newTestHub(st hub.Storage) *hub.Hub {
	return hub.New(st, nil, hub.Options{
		RoomBufferSize: 64,
		PersistTimeout: time.Second,
	})
}

func newTestSession(userID int64, nickname string) *session.Session {
	return session.New(userID, nickname, sessionBuffer)
}

// recvEvent waits for the next outbound message and checks its kind.
func recvEvent(t *testing.T, sess *session.Session, wantKind string) protocol.Envelope {
	t.Helper()

	select {
	case data, ok := <-sess.Outbound():
		if !ok {
			t.Fatalf("outbound channel closed while waiting for %s", wantKind)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("failed to decode outbound frame: %v", err)
		}
		if env.Type != wantKind {
			t.Fatalf("event kind mismatch: got %s, want %s", env.Type, wantKind)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", wantKind)
		return protocol.Envelope{}
	}
}

// expectSilence fails when any message arrives within the window.
func expectSilence(t *testing.T, sess *session.Session) {
	t.Helper()

	select {
	case data, ok := <-sess.Outbound():
		if ok {
			var env protocol.Envelope
			json.Unmarshal(data, &env)
			t.Fatalf("expected no message, got %s", env.Type)
		}
	case <-time.After(150 * time.Millisecond):
	}
}

func decodePayload(t *testing.T, env protocol.Envelope, v any) {
	t.Helper()
	if err := json.Unmarshal(env.Payload, v); err != nil {
		t.Fatalf("failed to decode %s payload: %v", env.Type, err)
	}
}

// join drains the ack + bulk load so tests start from a quiet channel.
func join(t *testing.T, h *hub.Hub, sess *session.Session, projectID string) {
	t.Helper()
	h.Join(sess, projectID)
	recvEvent(t, sess, protocol.EventProjectJoined)
	recvEvent(t, sess, protocol.EventDrawingBulkLoad)
}

func rectShape(id string) protocol.Shape {
	return protocol.Shape{
		ID:     id,
		Type:   protocol.ShapeRect,
		X:      10,
		Y:      10,
		Width:  50,
		Height: 50,
		ZIndex: 0,
	}
}

func TestJoinAcksAndSeedsLateJoiner(t *testing.T) {
	st := &MockStorage{}
	st.On("LoadShapes", mock.Anything, "p1").Return([]protocol.Shape{
		{ID: "b", Type: protocol.ShapeRect, ZIndex: 2},
		{ID: "a", Type: protocol.ShapeCircle, ZIndex: 1},
	}, nil)

	h := newTestHub(st)
	sess := newTestSession(1, "alice")

	h.Join(sess, "p1")

	ack := recvEvent(t, sess, protocol.EventProjectJoined)
	var joined protocol.JoinedPayload
	decodePayload(t, ack, &joined)
	if joined.ProjectID != "p1" {
		t.Errorf("ack project mismatch: got %s, want p1", joined.ProjectID)
	}

	bulk := recvEvent(t, sess, protocol.EventDrawingBulkLoad)
	var load protocol.BulkLoadPayload
	decodePayload(t, bulk, &load)
	if len(load.Shapes) != 2 {
		t.Fatalf("bulk load shape count: got %d, want 2", len(load.Shapes))
	}
	// ascending z-index
	if load.Shapes[0].ID != "a" || load.Shapes[1].ID != "b" {
		t.Errorf("bulk load order: got [%s %s], want [a b]", load.Shapes[0].ID, load.Shapes[1].ID)
	}

	st.AssertCalled(t, "LoadShapes", mock.Anything, "p1")
}

func TestJoinAnnouncesToExistingMembersOnly(t *testing.T) {
	h := newTestHub(newBenignStorage())
	s1 := newTestSession(1, "alice")
	s2 := newTestSession(2, "bob")

	join(t, h, s1, "p1")
	join(t, h, s2, "p1")

	// s1 sees s2 arrive
	env := recvEvent(t, s1, protocol.EventUserJoined)
	var payload protocol.UserJoinedPayload
	decodePayload(t, env, &payload)
	if payload.UserID != 2 || payload.SessionID != s2.ID {
		t.Errorf("user:joined payload mismatch: got user=%d session=%s", payload.UserID, payload.SessionID)
	}

	// s2 never sees its own arrival
	expectSilence(t, s2)
}

func TestRejoinSameRoomResendsAckOnly(t *testing.T) {
	h := newTestHub(newBenignStorage())
	s1 := newTestSession(1, "alice")
	s2 := newTestSession(2, "bob")

	join(t, h, s1, "p1")
	join(t, h, s2, "p1")
	recvEvent(t, s1, protocol.EventUserJoined)

	// re-join is a no-op beyond the ack + bulk load
	join(t, h, s2, "p1")
	expectSilence(t, s1)
}

func TestDrawingUpdateBroadcastsToOthersNotOrigin(t *testing.T) {
	h := newTestHub(newBenignStorage())
	s1 := newTestSession(1, "alice")
	s2 := newTestSession(2, "bob")

	join(t, h, s1, "p1")
	join(t, h, s2, "p1")
	recvEvent(t, s1, protocol.EventUserJoined)

	shape := rectShape("r1")
	h.Dispatch(s1, &protocol.UpdateDrawing{ProjectID: "p1", Shape: shape})

	env := recvEvent(t, s2, protocol.EventDrawingUpdated)
	var got protocol.Shape
	decodePayload(t, env, &got)
	if got.ID != "r1" || got.X != 10 || got.Y != 10 || got.Width != 50 || got.Height != 50 || got.ZIndex != 0 {
		t.Errorf("broadcast shape mismatch: got %+v", got)
	}

	// never echo back to the originating session
	expectSilence(t, s1)
}

func TestNonMemberUpdateIsRejectedAndNotBroadcast(t *testing.T) {
	st := newBenignStorage()
	h := newTestHub(st)
	member := newTestSession(1, "alice")
	outsider := newTestSession(2, "mallory")

	join(t, h, member, "p1")

	h.Dispatch(outsider, &protocol.UpdateDrawing{ProjectID: "p1", Shape: rectShape("r1")})

	env := recvEvent(t, outsider, protocol.EventOperationRejected)
	var rejected protocol.RejectedPayload
	decodePayload(t, env, &rejected)
	if rejected.Op != protocol.EventDrawingUpdate {
		t.Errorf("rejected op mismatch: got %s", rejected.Op)
	}

	expectSilence(t, member)
	st.AssertNotCalled(t, "PersistShape", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRoomIsolation(t *testing.T) {
	h := newTestHub(newBenignStorage())
	sa := newTestSession(1, "alice")
	sb := newTestSession(2, "bob")

	join(t, h, sa, "projectA")
	join(t, h, sb, "projectB")

	h.Dispatch(sa, &protocol.UpdateDrawing{ProjectID: "projectA", Shape: rectShape("r1")})

	// a session only joined to B never observes A's events
	expectSilence(t, sb)
}

func TestDoubleDeleteIsIdempotent(t *testing.T) {
	h := newTestHub(newBenignStorage())
	s1 := newTestSession(1, "alice")
	s2 := newTestSession(2, "bob")

	join(t, h, s1, "p1")
	join(t, h, s2, "p1")
	recvEvent(t, s1, protocol.EventUserJoined)

	h.Dispatch(s1, &protocol.UpdateDrawing{ProjectID: "p1", Shape: rectShape("r1")})
	recvEvent(t, s2, protocol.EventDrawingUpdated)

	h.Dispatch(s1, &protocol.DeleteDrawing{ProjectID: "p1", ShapeID: "r1"})
	h.Dispatch(s1, &protocol.DeleteDrawing{ProjectID: "p1", ShapeID: "r1"})

	for i := 0; i < 2; i++ {
		env := recvEvent(t, s2, protocol.EventDrawingDeleted)
		var deleted protocol.DrawingDeletedPayload
		decodePayload(t, env, &deleted)
		if deleted.ShapeID != "r1" {
			t.Errorf("delete %d shape mismatch: got %s", i, deleted.ShapeID)
		}
	}

	// no error surfaced to the origin for the repeat delete
	expectSilence(t, s1)
}

func TestPersistFailureSuppressesApplyAndBroadcast(t *testing.T) {
	st := &MockStorage{}
	st.On("LoadShapes", mock.Anything, mock.Anything).Return([]protocol.Shape{}, nil)
	st.On("PersistShape", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("connection refused"))

	h := newTestHub(st)
	s1 := newTestSession(1, "alice")
	s2 := newTestSession(2, "bob")

	join(t, h, s1, "p1")
	join(t, h, s2, "p1")
	recvEvent(t, s1, protocol.EventUserJoined)

	h.Dispatch(s1, &protocol.UpdateDrawing{ProjectID: "p1", Shape: rectShape("r1")})

	env := recvEvent(t, s1, protocol.EventOperationFailed)
	var failed protocol.FailedPayload
	decodePayload(t, env, &failed)
	if failed.Op != protocol.EventDrawingUpdate {
		t.Errorf("failed op mismatch: got %s", failed.Op)
	}

	// nothing was broadcast
	expectSilence(t, s2)

	// the in-memory state was not touched: a late joiner sees an empty canvas
	s3 := newTestSession(3, "carol")
	h.Join(s3, "p1")
	recvEvent(t, s3, protocol.EventProjectJoined)
	bulk := recvEvent(t, s3, protocol.EventDrawingBulkLoad)
	var load protocol.BulkLoadPayload
	decodePayload(t, bulk, &load)
	if len(load.Shapes) != 0 {
		t.Errorf("shape store mutated despite persist failure: %d shapes", len(load.Shapes))
	}
}

func TestLeaveAnnouncesUserLeft(t *testing.T) {
	h := newTestHub(newBenignStorage())
	s1 := newTestSession(1, "alice")
	s2 := newTestSession(2, "bob")

	join(t, h, s1, "p1")
	join(t, h, s2, "p1")
	recvEvent(t, s1, protocol.EventUserJoined)

	h.Leave(s2, "p1")

	env := recvEvent(t, s1, protocol.EventUserLeft)
	var left protocol.UserLeftPayload
	decodePayload(t, env, &left)
	if left.UserID != 2 || left.SessionID != s2.ID {
		t.Errorf("user:left payload mismatch: got user=%d session=%s", left.UserID, left.SessionID)
	}

	// leaving a room you are not in is a no-op
	h.Leave(s2, "p1")
	expectSilence(t, s1)
}

func TestDisconnectImpliesLeaveAndStopsDelivery(t *testing.T) {
	h := newTestHub(newBenignStorage())
	s1 := newTestSession(1, "alice")
	s2 := newTestSession(2, "bob")

	join(t, h, s1, "p1")
	join(t, h, s2, "p1")
	recvEvent(t, s1, protocol.EventUserJoined)

	h.Disconnect(s2)
	s2.Close()

	recvEvent(t, s1, protocol.EventUserLeft)

	// subsequent room traffic never targets the dead session
	h.Dispatch(s1, &protocol.UpdateDrawing{ProjectID: "p1", Shape: rectShape("r1")})
	expectSilence(t, s1)

	h.Disconnect(s1)
	if got := h.RoomCount(); got != 0 {
		t.Errorf("room count after all members left: got %d, want 0", got)
	}
}

func TestJoiningNewRoomImplicitlyLeavesOld(t *testing.T) {
	h := newTestHub(newBenignStorage())
	roamer := newTestSession(1, "alice")
	watcherA := newTestSession(2, "bob")

	join(t, h, watcherA, "projectA")
	join(t, h, roamer, "projectA")
	recvEvent(t, watcherA, protocol.EventUserJoined)

	join(t, h, roamer, "projectB")

	env := recvEvent(t, watcherA, protocol.EventUserLeft)
	var left protocol.UserLeftPayload
	decodePayload(t, env, &left)
	if left.UserID != 1 {
		t.Errorf("user:left user mismatch: got %d, want 1", left.UserID)
	}

	// events for the old room now get rejected
	h.Dispatch(roamer, &protocol.MoveCursor{ProjectID: "projectA", X: 1, Y: 2})
	recvEvent(t, roamer, protocol.EventOperationRejected)
	expectSilence(t, watcherA)
}

func TestCursorMoveRelayedWithSenderIdentity(t *testing.T) {
	h := newTestHub(newBenignStorage())
	s1 := newTestSession(1, "alice")
	s2 := newTestSession(2, "bob")

	join(t, h, s1, "p1")
	join(t, h, s2, "p1")
	recvEvent(t, s1, protocol.EventUserJoined)

	h.Dispatch(s1, &protocol.MoveCursor{ProjectID: "p1", X: 33, Y: 44})

	env := recvEvent(t, s2, protocol.EventCursorMoved)
	var moved protocol.CursorMovedPayload
	decodePayload(t, env, &moved)
	if moved.UserID != 1 || moved.SessionID != s1.ID || moved.X != 33 || moved.Y != 44 {
		t.Errorf("cursor:moved payload mismatch: got %+v", moved)
	}

	expectSilence(t, s1)
}

func TestCommentAddedBroadcastsToWholeRoom(t *testing.T) {
	st := newBenignStorage()
	h := newTestHub(st)
	s1 := newTestSession(1, "alice")
	s2 := newTestSession(2, "bob")

	join(t, h, s1, "p1")
	join(t, h, s2, "p1")
	recvEvent(t, s1, protocol.EventUserJoined)

	x := 12.5
	h.Dispatch(s1, &protocol.AddComment{ProjectID: "p1", Content: "looks off", X: &x})

	// the whole room, origin included, gets the stamped record
	for _, sess := range []*session.Session{s1, s2} {
		env := recvEvent(t, sess, protocol.EventCommentAdded)
		var added protocol.CommentAddedPayload
		decodePayload(t, env, &added)
		if added.ID == "" {
			t.Error("comment id was not server-stamped")
		}
		if added.Content != "looks off" || added.UserID != 1 || added.Nickname != "alice" {
			t.Errorf("comment payload mismatch: got %+v", added)
		}
		if added.X == nil || *added.X != 12.5 {
			t.Errorf("comment anchor mismatch: got %v", added.X)
		}
		if added.CreatedAt == "" {
			t.Error("comment timestamp was not stamped")
		}
	}

	st.AssertCalled(t, "SaveComment", mock.Anything, mock.Anything)
}

func TestVersionCreateDefaultsLabel(t *testing.T) {
	st := newBenignStorage()
	h := newTestHub(st)
	s1 := newTestSession(1, "alice")

	join(t, h, s1, "p1")

	h.Dispatch(s1, &protocol.CreateVersion{
		ProjectID: "p1",
		Snapshot:  json.RawMessage(`{"shapes":[]}`),
	})

	env := recvEvent(t, s1, protocol.EventVersionCreated)
	var created protocol.VersionCreatedPayload
	decodePayload(t, env, &created)
	if created.Name != "Snapshot" {
		t.Errorf("version name default: got %q, want Snapshot", created.Name)
	}
	if created.ID == "" {
		t.Error("version id was not server-stamped")
	}

	st.AssertCalled(t, "SaveVersion", mock.Anything, mock.Anything)
}

func TestUpdatesFromOneSessionKeepOrder(t *testing.T) {
	h := newTestHub(newBenignStorage())
	s1 := newTestSession(1, "alice")
	s2 := newTestSession(2, "bob")

	join(t, h, s1, "p1")
	join(t, h, s2, "p1")
	recvEvent(t, s1, protocol.EventUserJoined)

	for i := 0; i < 5; i++ {
		shape := rectShape("r1")
		shape.X = float64(i)
		h.Dispatch(s1, &protocol.UpdateDrawing{ProjectID: "p1", Shape: shape})
	}

	// FIFO per connection: broadcasts arrive in dispatch order
	for i := 0; i < 5; i++ {
		env := recvEvent(t, s2, protocol.EventDrawingUpdated)
		var got protocol.Shape
		decodePayload(t, env, &got)
		if got.X != float64(i) {
			t.Fatalf("out-of-order broadcast: got x=%v at index %d", got.X, i)
		}
	}
}

func TestJoinRacingLastDisconnectKeepsRoomLive(t *testing.T) {
	// A join registers the session with the hub before it lands in the
	// room's own member set; a concurrent last-member disconnect must not
	// destroy the room inside that window. Iterate to give the scheduler
	// chances to interleave.
	for i := 0; i < 200; i++ {
		h := newTestHub(newBenignStorage())

		s1 := newTestSession(1, "alice")
		join(t, h, s1, "p1")

		s2 := newTestSession(2, "bob")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Join(s2, "p1")
		}()
		go func() {
			defer wg.Done()
			h.Disconnect(s1)
		}()
		wg.Wait()

		// Whatever the interleaving, s2 must end up in a live room: an
		// edit it submits has to reach a later joiner to the same project.
		s3 := newTestSession(3, "carol")
		join(t, h, s3, "p1")

		h.Dispatch(s2, &protocol.UpdateDrawing{ProjectID: "p1", Shape: rectShape("r1")})

		env := recvEvent(t, s3, protocol.EventDrawingUpdated)
		var got protocol.Shape
		decodePayload(t, env, &got)
		if got.ID != "r1" {
			t.Fatalf("iteration %d: shape mismatch: got %s", i, got.ID)
		}

		s1.Close()
		s2.Close()
		s3.Close()
	}
}
