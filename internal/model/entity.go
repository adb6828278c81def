package model

import (
	"time"
)

// Drawing is one persisted shape record. The id is client-generated and
// stable across edits; updates replace the whole row.
type Drawing struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectID   string    `gorm:"type:varchar(64);not null;index:idx_drawings_project_z" json:"project_id"`
	UserID      int64     `gorm:"not null" json:"user_id"`
	Type        string    `gorm:"type:varchar(20);not null" json:"type"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
	Rotation    float64   `json:"rotation"`
	Fill        string    `gorm:"type:varchar(32)" json:"fill"`
	Stroke      string    `gorm:"type:varchar(32)" json:"stroke"`
	StrokeWidth float64   `json:"stroke_width"`
	Opacity     float64   `gorm:"default:1" json:"opacity"`
	ZIndex      int       `gorm:"default:0;index:idx_drawings_project_z" json:"z_index"`
	Data        string    `gorm:"type:jsonb" json:"data,omitempty"` // variant payload: text, path points
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Drawing) TableName() string {
	return "drawings"
}

// Comment is an append-only annotation, optionally anchored to a canvas
// point. Never reconciled into the shape state.
type Comment struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProjectID string    `gorm:"type:varchar(64);not null;index" json:"project_id"`
	UserID    int64     `gorm:"not null" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	X         *float64  `json:"x,omitempty"`
	Y         *float64  `json:"y,omitempty"`
	Resolved  bool      `gorm:"default:false" json:"resolved"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Comment) TableName() string {
	return "comments"
}

// Version captures the full shape collection plus a user-supplied label at
// a point in time. Restore is out of scope; only capture exists.
type Version struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProjectID string    `gorm:"type:varchar(64);not null;index" json:"project_id"`
	UserID    int64     `gorm:"not null" json:"user_id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Snapshot  string    `gorm:"type:jsonb;not null" json:"snapshot"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Version) TableName() string {
	return "versions"
}
