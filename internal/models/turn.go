package models

import "time"

// TurnRecord is one utterance in a session's append-only turn log.
// Rows are immutable once written; the unique (session_id, idx) index
// enforces the gapless strictly-increasing turn order at the DB level.
type TurnRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:36;uniqueIndex:idx_session_turn"`
	Idx       int    `gorm:"uniqueIndex:idx_session_turn"`
	Speaker   string `gorm:"size:64;index"`
	Content   string `gorm:"type:mediumtext"`
	LatencyMs int
	Embedding string `gorm:"type:json"` // JSON float array
	Basin     string `gorm:"size:32"`   // live label assigned at turn time
	CreatedAt time.Time
}
