// Package models defines the GORM persistence models for trajet.
package models

import "time"

// Scheduler state constants, shared between the live scheduler and the
// persisted session row.
const (
	StateIdle          = "idle"
	StateRunning       = "running"
	StateAwaitingHuman = "awaiting_human"
	StatePaused        = "paused"
	StateComplete      = "complete"
)

// SessionRecord is the persisted view of one dialogue session.
type SessionRecord struct {
	ID           string `gorm:"primaryKey;size:36"`
	Provocation  string `gorm:"type:text"`
	State        string `gorm:"size:16;index"`
	EmbeddingDim int
	Seed         int64
	Roster       string `gorm:"type:json"` // JSON snapshot of the agent roster
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinalizedAt  *time.Time

	Turns    []TurnRecord    `gorm:"foreignKey:SessionID"`
	Metrics  []MetricsPoint  `gorm:"foreignKey:SessionID"`
	Analysis *AnalysisRecord `gorm:"foreignKey:SessionID"`
}
