package models

import "time"

// LanguageLevel is a fixed reference row ("a1.1" inside level group "a1").
// Seeded once at setup time and treated as immutable afterwards.
type LanguageLevel struct {
	ID         string    `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	Name       string    `db:"name" json:"name"`
	LevelGroup string    `db:"level_group" json:"level_group"`
	SortOrder  int       `db:"sort_order" json:"sort_order"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// BeginnerLevelGroups are the level groups treated as beginner for the
// public cohort listing.
var BeginnerLevelGroups = []string{"a0", "a1"}
