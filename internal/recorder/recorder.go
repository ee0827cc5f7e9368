// Package recorder persists the append-only session log: turns, per-turn
// metrics points, and the single end-of-session analysis. It also serves
// the query path used by the dashboard and the CLI. Historical data is
// read from here, never from the live feed.
package recorder

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fieldline/trajet/internal/models"
)

// Sentinel errors for the query and append paths.
var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("recorder: not found")

	// ErrAnalysisNotReady is returned when a session exists but has not
	// been finalized yet.
	ErrAnalysisNotReady = errors.New("recorder: analysis not yet available")

	// ErrDataIntegrity is returned for writes that would corrupt the log:
	// mutating a finalized session, a non-monotonic turn index, or a
	// duplicate analysis.
	ErrDataIntegrity = errors.New("recorder: data integrity violation")
)

// Store is the gorm-backed recorder.
type Store struct {
	db *gorm.DB
}

// New wraps a database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateSession inserts the session row.
func (s *Store) CreateSession(rec *models.SessionRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("recorder: create session: %w", err)
	}
	return nil
}

// AppendTurn appends one immutable turn row. The index must equal the
// current turn count; gaps and rewrites are rejected.
func (s *Store) AppendTurn(rec *models.TurnRecord) error {
	if err := s.guardAppend(rec.SessionID, rec.Idx, &models.TurnRecord{}); err != nil {
		return err
	}
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("recorder: append turn %d: %w", rec.Idx, err)
	}
	return nil
}

// AppendMetrics appends the metrics point for one turn.
func (s *Store) AppendMetrics(p *models.MetricsPoint) error {
	if err := s.guardAppend(p.SessionID, p.Idx, &models.MetricsPoint{}); err != nil {
		return err
	}
	if err := s.db.Create(p).Error; err != nil {
		return fmt.Errorf("recorder: append metrics %d: %w", p.Idx, err)
	}
	return nil
}

// guardAppend rejects appends to finalized sessions and non-monotonic
// indices. model selects which per-session series the index is checked
// against.
func (s *Store) guardAppend(sessionID string, idx int, model interface{}) error {
	sess, err := s.loadSession(sessionID)
	if err != nil {
		return err
	}
	if sess.FinalizedAt != nil {
		return fmt.Errorf("%w: session %s is finalized", ErrDataIntegrity, sessionID)
	}
	var count int64
	if err := s.db.Model(model).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return fmt.Errorf("recorder: count rows: %w", err)
	}
	if int64(idx) != count {
		return fmt.Errorf("%w: index %d, want %d", ErrDataIntegrity, idx, count)
	}
	return nil
}

// WriteAnalysis writes the end-of-session analysis exactly once.
func (s *Store) WriteAnalysis(a *models.AnalysisRecord) error {
	if _, err := s.loadSession(a.SessionID); err != nil {
		return err
	}
	var count int64
	if err := s.db.Model(&models.AnalysisRecord{}).
		Where("session_id = ?", a.SessionID).Count(&count).Error; err != nil {
		return fmt.Errorf("recorder: count analyses: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: analysis already written for session %s", ErrDataIntegrity, a.SessionID)
	}
	if err := s.db.Create(a).Error; err != nil {
		return fmt.Errorf("recorder: write analysis: %w", err)
	}
	return nil
}

// SetState updates the persisted scheduler state. Existence is checked
// explicitly: MySQL reports no affected rows for a no-op update, so
// RowsAffected cannot stand in for it.
func (s *Store) SetState(sessionID, state string) error {
	if _, err := s.loadSession(sessionID); err != nil {
		return err
	}
	if err := s.db.Model(&models.SessionRecord{}).
		Where("id = ?", sessionID).Update("state", state).Error; err != nil {
		return fmt.Errorf("recorder: set state: %w", err)
	}
	return nil
}

// MarkFinalized stamps the session complete and read-only.
func (s *Store) MarkFinalized(sessionID string, embeddingDim int) error {
	if _, err := s.loadSession(sessionID); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := s.db.Model(&models.SessionRecord{}).Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"state":         models.StateComplete,
			"finalized_at":  &now,
			"embedding_dim": embeddingDim,
		}).Error; err != nil {
		return fmt.Errorf("recorder: finalize: %w", err)
	}
	return nil
}

func (s *Store) loadSession(id string) (*models.SessionRecord, error) {
	var sess models.SessionRecord
	if err := s.db.First(&sess, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: session %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("recorder: load session: %w", err)
	}
	return &sess, nil
}
