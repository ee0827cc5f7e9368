package models

import "time"

// AnalysisRecord is the single authoritative end-of-session analysis.
// Exactly one row exists per finalized session; a second end() is rejected
// before this table is ever touched twice. The batch basin sequence is kept
// separate from the live per-turn labels stored on TurnRecord so the two
// artifacts never silently disagree.
type AnalysisRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:36;uniqueIndex"`

	DominantBasin string  `gorm:"size:32"`
	DominantShare float64
	BasinSequence string `gorm:"type:json"` // authoritative batch labels
	LiveSequence  string `gorm:"type:json"` // labels published on the feed
	Transitions   int

	CoherenceDist string `gorm:"type:json"` // pattern -> share

	Alpha        *float64 // final full-series value
	AlphaStatus  string   `gorm:"size:24"` // ok, insufficient-data, degenerate
	EntropyShift *float64
	Voice        *float64

	IntegrityScore float64
	IntegrityLabel string `gorm:"size:16"`

	TurnCounts string `gorm:"type:json"` // speaker -> turn count
	CreatedAt  time.Time
}
