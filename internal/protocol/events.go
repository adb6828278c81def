package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client -> server event kinds.
const (
	EventProjectJoin   = "project:join"
	EventProjectLeave  = "project:leave"
	EventDrawingUpdate = "drawing:update"
	EventDrawingDelete = "drawing:delete"
	EventCursorMove    = "cursor:move"
	EventCommentAdd    = "comment:add"
	EventVersionCreate = "version:create"
)

// Server -> client event kinds.
const (
	EventProjectJoined     = "project:joined"
	EventUserJoined        = "user:joined"
	EventUserLeft          = "user:left"
	EventDrawingBulkLoad   = "drawing:bulkLoad"
	EventDrawingUpdated    = "drawing:updated"
	EventDrawingDeleted    = "drawing:deleted"
	EventCursorMoved       = "cursor:moved"
	EventCommentAdded      = "comment:added"
	EventVersionCreated    = "version:created"
	EventOperationRejected = "operation:rejected"
	EventOperationFailed   = "operation:failed"
)

// ErrMalformedEvent marks payloads missing required fields, carrying an
// unknown kind, or failing to parse. Malformed events are dropped at the
// boundary and never reach a room.
var ErrMalformedEvent = errors.New("malformed event")

// Envelope is the wire frame for every message in either direction.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Shape variants. The set is closed; anything else is malformed.
const (
	ShapeRect     = "rect"
	ShapeCircle   = "circle"
	ShapeLine     = "line"
	ShapeText     = "text"
	ShapeImage    = "image"
	ShapeFreehand = "freehand"
)

var validShapeTypes = map[string]bool{
	ShapeRect:     true,
	ShapeCircle:   true,
	ShapeLine:     true,
	ShapeText:     true,
	ShapeImage:    true,
	ShapeFreehand: true,
}

// Shape is one drawable record. Updates replace the whole record; there is
// no field-level merge (last writer wins).
type Shape struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	X           float64         `json:"x"`
	Y           float64         `json:"y"`
	Width       float64         `json:"width"`
	Height      float64         `json:"height"`
	Rotation    float64         `json:"rotation"`
	Fill        string          `json:"fill"`
	Stroke      string          `json:"stroke"`
	StrokeWidth float64         `json:"strokeWidth"`
	Opacity     float64         `json:"opacity"`
	ZIndex      int             `json:"zIndex"`
	Data        json.RawMessage `json:"data,omitempty"` // variant payload: text string, path points, image ref
}

// Validate checks the fields the server relies on.
func (s *Shape) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: shape id is required", ErrMalformedEvent)
	}
	if !validShapeTypes[s.Type] {
		return fmt.Errorf("%w: unknown shape type %q", ErrMalformedEvent, s.Type)
	}
	return nil
}

// Inbound is the closed set of client events after boundary validation.
type Inbound interface {
	Kind() string
	Project() string
	Validate() error
}

// JoinProject joins the room for a project.
type JoinProject struct {
	ProjectID string `json:"projectId"`
}

func (e *JoinProject) Kind() string    { return EventProjectJoin }
func (e *JoinProject) Project() string { return e.ProjectID }
func (e *JoinProject) Validate() error { return requireProject(e.ProjectID) }

// LeaveProject leaves the room for a project.
type LeaveProject struct {
	ProjectID string `json:"projectId"`
}

func (e *LeaveProject) Kind() string    { return EventProjectLeave }
func (e *LeaveProject) Project() string { return e.ProjectID }
func (e *LeaveProject) Validate() error { return requireProject(e.ProjectID) }

// UpdateDrawing upserts one full shape record.
type UpdateDrawing struct {
	ProjectID string `json:"projectId"`
	Shape     Shape  `json:"shape"`
}

func (e *UpdateDrawing) Kind() string    { return EventDrawingUpdate }
func (e *UpdateDrawing) Project() string { return e.ProjectID }
func (e *UpdateDrawing) Validate() error {
	if err := requireProject(e.ProjectID); err != nil {
		return err
	}
	return e.Shape.Validate()
}

// DeleteDrawing removes a shape by id. Deleting an absent shape is a no-op.
type DeleteDrawing struct {
	ProjectID string `json:"projectId"`
	ShapeID   string `json:"shapeId"`
}

func (e *DeleteDrawing) Kind() string    { return EventDrawingDelete }
func (e *DeleteDrawing) Project() string { return e.ProjectID }
func (e *DeleteDrawing) Validate() error {
	if err := requireProject(e.ProjectID); err != nil {
		return err
	}
	if e.ShapeID == "" {
		return fmt.Errorf("%w: shapeId is required", ErrMalformedEvent)
	}
	return nil
}

// MoveCursor reports the sender's cursor position. Purely transient.
type MoveCursor struct {
	ProjectID string  `json:"projectId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

func (e *MoveCursor) Kind() string    { return EventCursorMove }
func (e *MoveCursor) Project() string { return e.ProjectID }
func (e *MoveCursor) Validate() error { return requireProject(e.ProjectID) }

// AddComment attaches a comment, optionally anchored to a canvas point.
type AddComment struct {
	ProjectID string   `json:"projectId"`
	Content   string   `json:"content"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
}

func (e *AddComment) Kind() string    { return EventCommentAdd }
func (e *AddComment) Project() string { return e.ProjectID }
func (e *AddComment) Validate() error {
	if err := requireProject(e.ProjectID); err != nil {
		return err
	}
	if e.Content == "" {
		return fmt.Errorf("%w: comment content is required", ErrMalformedEvent)
	}
	return nil
}

// CreateVersion captures a labeled snapshot of the whole canvas.
type CreateVersion struct {
	ProjectID string          `json:"projectId"`
	Name      string          `json:"name,omitempty"`
	Snapshot  json.RawMessage `json:"snapshot"`
}

func (e *CreateVersion) Kind() string    { return EventVersionCreate }
func (e *CreateVersion) Project() string { return e.ProjectID }
func (e *CreateVersion) Validate() error {
	if err := requireProject(e.ProjectID); err != nil {
		return err
	}
	if len(e.Snapshot) == 0 {
		return fmt.Errorf("%w: snapshot is required", ErrMalformedEvent)
	}
	return nil
}

func requireProject(projectID string) error {
	if projectID == "" {
		return fmt.Errorf("%w: projectId is required", ErrMalformedEvent)
	}
	return nil
}

// Decode parses one wire frame into its typed event and validates it.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var ev Inbound
	switch env.Type {
	case EventProjectJoin:
		ev = &JoinProject{}
	case EventProjectLeave:
		ev = &LeaveProject{}
	case EventDrawingUpdate:
		ev = &UpdateDrawing{}
	case EventDrawingDelete:
		ev = &DeleteDrawing{}
	case EventCursorMove:
		ev = &MoveCursor{}
	case EventCommentAdd:
		ev = &AddComment{}
	case EventVersionCreate:
		ev = &CreateVersion{}
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
	}

	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// Encode builds one wire frame.
func Encode(kind string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Envelope{Type: kind, Payload: raw})
}
