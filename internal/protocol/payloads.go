package protocol

// Server -> client payloads.

// JoinedPayload acknowledges a successful project:join.
type JoinedPayload struct {
	ProjectID string `json:"projectId"`
}

// UserJoinedPayload announces a new room member to existing members.
type UserJoinedPayload struct {
	UserID    int64  `json:"userId"`
	SessionID string `json:"sessionId"`
	Nickname  string `json:"nickname,omitempty"`
}

// UserLeftPayload announces a departed room member.
type UserLeftPayload struct {
	UserID    int64  `json:"userId"`
	SessionID string `json:"sessionId"`
}

// BulkLoadPayload seeds a late joiner with the full canvas state,
// ordered by ascending z-index.
type BulkLoadPayload struct {
	ProjectID string  `json:"projectId"`
	Shapes    []Shape `json:"shapes"`
}

// DrawingDeletedPayload mirrors drawing:delete to the rest of the room.
type DrawingDeletedPayload struct {
	ShapeID string `json:"shapeId"`
}

// CursorMovedPayload relays a cursor position with sender identity.
type CursorMovedPayload struct {
	UserID    int64   `json:"userId"`
	SessionID string  `json:"sessionId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// CommentAddedPayload carries the server-stamped comment record.
type CommentAddedPayload struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"projectId"`
	UserID    int64    `json:"userId"`
	Nickname  string   `json:"nickname,omitempty"`
	Content   string   `json:"content"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	CreatedAt string   `json:"createdAt"`
}

// VersionCreatedPayload carries the server-stamped version record.
// The snapshot blob itself is not echoed back; clients already hold it.
type VersionCreatedPayload struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	UserID    int64  `json:"userId"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// RejectedPayload tells the origin its event was refused (not a member,
// malformed payload). The event was not applied or broadcast.
type RejectedPayload struct {
	Op     string `json:"op"`
	Reason string `json:"reason"`
}

// FailedPayload tells the origin a mutation did not commit (storage error).
// Nothing was applied or broadcast.
type FailedPayload struct {
	Op     string `json:"op"`
	Reason string `json:"reason"`
}
