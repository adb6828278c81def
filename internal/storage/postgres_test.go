package storage

import (
	"testing"
	"time"

	"whiteboard-backend/internal/model"
)

func TestChronologicalFlipsNewestFirstWindow(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rows := []model.Comment{
		{ID: "c3", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "c2", CreatedAt: base.Add(1 * time.Minute)},
		{ID: "c1", CreatedAt: base},
	}

	chronological(rows)

	wantOrder := []string{"c1", "c2", "c3"}
	for i, want := range wantOrder {
		if rows[i].ID != want {
			t.Errorf("order[%d]: got %s, want %s", i, rows[i].ID, want)
		}
	}
	if !rows[0].CreatedAt.Before(rows[1].CreatedAt) || !rows[1].CreatedAt.Before(rows[2].CreatedAt) {
		t.Error("timestamps not ascending after flip")
	}
}

func TestChronologicalHandlesShortWindows(t *testing.T) {
	chronological(nil)
	chronological([]model.Comment{})

	one := []model.Comment{{ID: "only"}}
	chronological(one)
	if one[0].ID != "only" {
		t.Errorf("single-element window changed: %s", one[0].ID)
	}

	two := []model.Comment{{ID: "newer"}, {ID: "older"}}
	chronological(two)
	if two[0].ID != "older" || two[1].ID != "newer" {
		t.Errorf("pair not flipped: %s, %s", two[0].ID, two[1].ID)
	}
}
