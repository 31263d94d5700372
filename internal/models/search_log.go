package models

import (
	"time"

	"gorm.io/datatypes"
)

// Dispatch outcome labels recorded with each search log row.
const (
	OutcomeCompleted    = "completed"
	OutcomeCacheHit     = "cache_hit"
	OutcomeThrottled    = "throttled"
	OutcomeHandlerError = "handler_error"
	OutcomeTimeout      = "timeout"
	OutcomeDropped      = "dropped"
)

// SearchLog records one dispatched update for later inspection.
type SearchLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TraceID     string `gorm:"type:text;index"`     // Dispatch trace identifier.
	UpdateID    int64  `gorm:"not null;index"`      // Platform update identifier.
	IdentityKey string `gorm:"type:text;not null;index"` // Throttling/caching identity.
	ChatID      int64  `gorm:"not null;default:0"`  // Conversation identifier.

	Query   string `gorm:"type:text"`                // Free-text query, empty for commands.
	Outcome string `gorm:"type:text;not null;index"` // Terminal dispatch outcome.

	LatencyMS int64          `gorm:"not null;default:0"` // Handler latency in milliseconds.
	Detail    datatypes.JSON `gorm:"type:jsonb"`         // Outcome detail payload.

	CreatedAt time.Time `gorm:"not null;index;autoCreateTime"` // Record timestamp.
}
