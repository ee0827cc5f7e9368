package recorder

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fieldline/trajet/internal/models"
)

// excerptLen caps the provocation excerpt in session listings.
const excerptLen = 80

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	TurnCount   int       `json:"turn_count"`
	HasAnalysis bool      `json:"has_analysis"`
	Excerpt     string    `json:"excerpt"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListSessions returns all sessions, oldest first, with turn counts and
// analysis availability.
func (s *Store) ListSessions() ([]SessionSummary, error) {
	var sessions []models.SessionRecord
	if err := s.db.Order("created_at ASC, id ASC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("recorder: list sessions: %w", err)
	}

	type countRow struct {
		SessionID string
		Count     int
	}
	var turnCounts []countRow
	if err := s.db.Model(&models.TurnRecord{}).
		Select("session_id, count(*) as count").
		Group("session_id").
		Find(&turnCounts).Error; err != nil {
		return nil, fmt.Errorf("recorder: count turns: %w", err)
	}
	counts := make(map[string]int, len(turnCounts))
	for _, r := range turnCounts {
		counts[r.SessionID] = r.Count
	}

	var analyzed []models.AnalysisRecord
	if err := s.db.Select("session_id").Find(&analyzed).Error; err != nil {
		return nil, fmt.Errorf("recorder: list analyses: %w", err)
	}
	hasAnalysis := make(map[string]bool, len(analyzed))
	for _, a := range analyzed {
		hasAnalysis[a.SessionID] = true
	}

	rows := make([]SessionSummary, len(sessions))
	for i, sess := range sessions {
		rows[i] = SessionSummary{
			ID:          sess.ID,
			State:       sess.State,
			TurnCount:   counts[sess.ID],
			HasAnalysis: hasAnalysis[sess.ID],
			Excerpt:     excerpt(sess.Provocation),
			CreatedAt:   sess.CreatedAt,
		}
	}
	return rows, nil
}

// GetSession returns the session row.
func (s *Store) GetSession(id string) (*models.SessionRecord, error) {
	return s.loadSession(id)
}

// GetTurns returns the full turn log in index order.
func (s *Store) GetTurns(sessionID string) ([]models.TurnRecord, error) {
	if _, err := s.loadSession(sessionID); err != nil {
		return nil, err
	}
	var turns []models.TurnRecord
	if err := s.db.Where("session_id = ?", sessionID).
		Order("idx ASC").Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("recorder: load turns: %w", err)
	}
	return turns, nil
}

// GetMetrics returns the per-turn metrics points in index order.
func (s *Store) GetMetrics(sessionID string) ([]models.MetricsPoint, error) {
	if _, err := s.loadSession(sessionID); err != nil {
		return nil, err
	}
	var points []models.MetricsPoint
	if err := s.db.Where("session_id = ?", sessionID).
		Order("idx ASC").Find(&points).Error; err != nil {
		return nil, fmt.Errorf("recorder: load metrics: %w", err)
	}
	return points, nil
}

// GetAnalysis returns the end-of-session analysis, or ErrAnalysisNotReady
// when the session exists but has not been finalized.
func (s *Store) GetAnalysis(sessionID string) (*models.AnalysisRecord, error) {
	if _, err := s.loadSession(sessionID); err != nil {
		return nil, err
	}
	var a models.AnalysisRecord
	err := s.db.Where("session_id = ?", sessionID).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: session %s", ErrAnalysisNotReady, sessionID)
		}
		return nil, fmt.Errorf("recorder: load analysis: %w", err)
	}
	return &a, nil
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLen {
		return text
	}
	return string(runes[:excerptLen]) + "..."
}
