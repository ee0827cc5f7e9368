package models

import "time"

// MetricsPoint is the per-turn metrics snapshot as published on the live
// feed. Nil pointers mark values that were undefined at that turn (alpha
// below its window, curvature on a zero-length step, voice with a single
// speaker). Rows are only ever replaced wholesale by the end-of-session
// batch recompute, never patched.
type MetricsPoint struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	SessionID      string `gorm:"size:36;uniqueIndex:idx_session_metrics"`
	Idx            int    `gorm:"uniqueIndex:idx_session_metrics"`
	Velocity       *float64
	Curvature      *float64
	Alpha          *float64 // running estimate, not the final value
	Voice          *float64
	IntegrityScore float64
	IntegrityLabel string `gorm:"size:16"`
	Basin          string `gorm:"size:32"`
	CreatedAt      time.Time
}
