// Package storage is the durable side of the collaboration core: shapes,
// comments and version snapshots in Postgres. The hub treats persistence as
// part of the commit, so every method here is called with a bounded context
// before anything is applied or broadcast.
package storage

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/protocol"
)

// CanvasStore persists canvas state via GORM.
type CanvasStore struct {
	db *gorm.DB
}

// NewCanvasStore creates a CanvasStore.
func NewCanvasStore(db *gorm.DB) *CanvasStore {
	return &CanvasStore{db: db}
}

// PersistShape upserts the full shape record (insert-or-replace by id).
func (s *CanvasStore) PersistShape(ctx context.Context, projectID string, userID int64, shape protocol.Shape) error {
	row := toDrawing(projectID, userID, shape)

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"x", "y", "width", "height", "rotation",
			"fill", "stroke", "stroke_width", "opacity", "z_index",
			"type", "data", "updated_at",
		}),
	}).Create(&row).Error
}

// DeletePersistedShape removes a shape row. A missing row is not an error;
// delete-delete races between sessions are expected.
func (s *CanvasStore) DeletePersistedShape(ctx context.Context, projectID, shapeID string) error {
	return s.db.WithContext(ctx).
		Where("project_id = ? AND id = ?", projectID, shapeID).
		Delete(&model.Drawing{}).Error
}

// LoadShapes returns a project's shapes ordered by z-index then id, the
// order clients paint in.
func (s *CanvasStore) LoadShapes(ctx context.Context, projectID string) ([]protocol.Shape, error) {
	var rows []model.Drawing
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("z_index ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	shapes := make([]protocol.Shape, 0, len(rows))
	for _, row := range rows {
		shapes = append(shapes, toShape(row))
	}
	return shapes, nil
}

// SaveComment inserts an append-only comment record.
func (s *CanvasStore) SaveComment(ctx context.Context, comment *model.Comment) error {
	return s.db.WithContext(ctx).Create(comment).Error
}

// SaveVersion inserts a version snapshot record.
func (s *CanvasStore) SaveVersion(ctx context.Context, version *model.Version) error {
	return s.db.WithContext(ctx).Create(version).Error
}

// LoadRecentComments returns the newest comments for a project in
// chronological order (oldest of the window first), the same order the
// Redis feed serves. Used as the fallback when the feed is cold.
func (s *CanvasStore) LoadRecentComments(ctx context.Context, projectID string, limit int) ([]model.Comment, error) {
	var rows []model.Comment
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// The DESC query selects the newest N; flip them so both sources
	// present the feed the same way.
	chronological(rows)
	return rows, nil
}

func chronological(rows []model.Comment) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

func toDrawing(projectID string, userID int64, shape protocol.Shape) model.Drawing {
	return model.Drawing{
		ID:          shape.ID,
		ProjectID:   projectID,
		UserID:      userID,
		Type:        shape.Type,
		X:           shape.X,
		Y:           shape.Y,
		Width:       shape.Width,
		Height:      shape.Height,
		Rotation:    shape.Rotation,
		Fill:        shape.Fill,
		Stroke:      shape.Stroke,
		StrokeWidth: shape.StrokeWidth,
		Opacity:     shape.Opacity,
		ZIndex:      shape.ZIndex,
		Data:        string(shape.Data),
	}
}

func toShape(row model.Drawing) protocol.Shape {
	var data json.RawMessage
	if row.Data != "" {
		data = json.RawMessage(row.Data)
	}
	return protocol.Shape{
		ID:          row.ID,
		Type:        row.Type,
		X:           row.X,
		Y:           row.Y,
		Width:       row.Width,
		Height:      row.Height,
		Rotation:    row.Rotation,
		Fill:        row.Fill,
		Stroke:      row.Stroke,
		StrokeWidth: row.StrokeWidth,
		Opacity:     row.Opacity,
		ZIndex:      row.ZIndex,
		Data:        data,
	}
}
