package model

import "time"

// Label is a named, colored tag. Names are globally unique.
type Label struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Color     string    `db:"color" json:"color"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// labelPalette holds the colors assigned to labels created on demand.
var labelPalette = []string{
	"#2563eb", "#16a34a", "#d97706", "#dc2626",
	"#7c3aed", "#0891b2", "#db2777", "#4b5563",
}

// LabelColor returns a stable palette color for a label name.
func LabelColor(name string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return labelPalette[h%uint32(len(labelPalette))]
}
