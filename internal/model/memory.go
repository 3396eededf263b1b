package model

import "time"

// MemoryItem is a small key/value fact fed to the model as context.
type MemoryItem struct {
	ID        int64      `db:"id" json:"id"`
	Kind      string     `db:"kind" json:"kind"`
	Key       string     `db:"key" json:"key"`
	Value     string     `db:"value" json:"value"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
