package domain

import "time"

// Tag caches how many bookmarks carry a name. Count is always recomputed from
// bookmarks, never incremented; a tag whose count drops to zero is deleted.
type Tag struct {
	Name      string    `json:"name"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp.
func (t *Tag) Touch() {
	t.UpdatedAt = time.Now()
}
