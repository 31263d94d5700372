package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting is a DB-backed configuration row keyed by name.
type Setting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Key   string         `gorm:"type:text;not null;uniqueIndex"` // Setting name.
	Value datatypes.JSON `gorm:"type:jsonb"`                     // JSON value payload.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
