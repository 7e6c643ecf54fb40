package domain

import "time"

// Document is the shared editor buffer of a room. Updates are
// last-write-wins; only the final state of an edit burst is persisted.
type Document struct {
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	UpdatedAt time.Time `json:"updated_at"`
}
