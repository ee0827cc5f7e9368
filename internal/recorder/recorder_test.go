package recorder

import (
	"errors"
	"strings"
	"testing"

	"github.com/fieldline/trajet/internal/db"
	"github.com/fieldline/trajet/internal/models"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.ConnectMemory()
	if err != nil {
		t.Fatalf("ConnectMemory() error = %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	return New(conn)
}

func createSession(t *testing.T, s *Store, id, provocation string) {
	t.Helper()
	if err := s.CreateSession(&models.SessionRecord{
		ID:          id,
		Provocation: provocation,
		State:       models.StateRunning,
	}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
}

func turn(sessionID string, idx int, speaker string) *models.TurnRecord {
	return &models.TurnRecord{
		SessionID: sessionID,
		Idx:       idx,
		Speaker:   speaker,
		Content:   "words",
		Embedding: "[1,0]",
		Basin:     "transitional",
	}
}

func TestAppendTurnMonotonicIndex(t *testing.T) {
	s := newStore(t)
	createSession(t, s, "s1", "test")

	if err := s.AppendTurn(turn("s1", 0, "kestrel")); err != nil {
		t.Fatalf("AppendTurn(0) error = %v", err)
	}
	if err := s.AppendTurn(turn("s1", 1, "merlin")); err != nil {
		t.Fatalf("AppendTurn(1) error = %v", err)
	}
	if err := s.AppendTurn(turn("s1", 3, "kestrel")); !errors.Is(err, ErrDataIntegrity) {
		t.Errorf("AppendTurn(3) error = %v, want ErrDataIntegrity", err)
	}
	if err := s.AppendTurn(turn("s1", 1, "kestrel")); !errors.Is(err, ErrDataIntegrity) {
		t.Errorf("AppendTurn(1) again error = %v, want ErrDataIntegrity", err)
	}
	if err := s.AppendTurn(turn("nope", 0, "kestrel")); !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendTurn(unknown session) error = %v, want ErrNotFound", err)
	}

	turns, err := s.GetTurns("s1")
	if err != nil {
		t.Fatalf("GetTurns() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	for i, tr := range turns {
		if tr.Idx != i {
			t.Errorf("turns[%d].Idx = %d, want %d", i, tr.Idx, i)
		}
	}
}

func TestAppendRejectedAfterFinalize(t *testing.T) {
	s := newStore(t)
	createSession(t, s, "s1", "test")
	if err := s.AppendTurn(turn("s1", 0, "kestrel")); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if err := s.MarkFinalized("s1", 8); err != nil {
		t.Fatalf("MarkFinalized() error = %v", err)
	}

	if err := s.AppendTurn(turn("s1", 1, "merlin")); !errors.Is(err, ErrDataIntegrity) {
		t.Errorf("AppendTurn() after finalize error = %v, want ErrDataIntegrity", err)
	}
	if err := s.AppendMetrics(&models.MetricsPoint{SessionID: "s1", Idx: 1}); !errors.Is(err, ErrDataIntegrity) {
		t.Errorf("AppendMetrics() after finalize error = %v, want ErrDataIntegrity", err)
	}

	sess, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.State != models.StateComplete {
		t.Errorf("State = %q, want %q", sess.State, models.StateComplete)
	}
	if sess.FinalizedAt == nil {
		t.Error("FinalizedAt = nil, want a timestamp")
	}
	if sess.EmbeddingDim != 8 {
		t.Errorf("EmbeddingDim = %d, want 8", sess.EmbeddingDim)
	}

	// The prior turns stay inspectable after finalization.
	turns, err := s.GetTurns("s1")
	if err != nil {
		t.Fatalf("GetTurns() error = %v", err)
	}
	if len(turns) != 1 {
		t.Errorf("len(turns) = %d, want 1", len(turns))
	}
}

func TestWriteAnalysisExactlyOnce(t *testing.T) {
	s := newStore(t)
	createSession(t, s, "s1", "test")

	if _, err := s.GetAnalysis("s1"); !errors.Is(err, ErrAnalysisNotReady) {
		t.Errorf("GetAnalysis() before write error = %v, want ErrAnalysisNotReady", err)
	}

	a := &models.AnalysisRecord{
		SessionID:     "s1",
		DominantBasin: "deep_resonance",
		DominantShare: 0.5,
		BasinSequence: `["deep_resonance"]`,
		LiveSequence:  `["transitional"]`,
		CoherenceDist: `{"transitional":1}`,
		AlphaStatus:   "insufficient-data",
		TurnCounts:    `{"kestrel":1}`,
	}
	if err := s.WriteAnalysis(a); err != nil {
		t.Fatalf("WriteAnalysis() error = %v", err)
	}
	if err := s.WriteAnalysis(a); !errors.Is(err, ErrDataIntegrity) {
		t.Errorf("second WriteAnalysis() error = %v, want ErrDataIntegrity", err)
	}

	got, err := s.GetAnalysis("s1")
	if err != nil {
		t.Fatalf("GetAnalysis() error = %v", err)
	}
	if got.DominantBasin != "deep_resonance" {
		t.Errorf("DominantBasin = %q, want deep_resonance", got.DominantBasin)
	}
	if _, err := s.GetAnalysis("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAnalysis(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestListSessions(t *testing.T) {
	s := newStore(t)
	long := strings.Repeat("provocation ", 20)
	createSession(t, s, "s1", "short one")
	createSession(t, s, "s2", long)

	if err := s.AppendTurn(turn("s2", 0, "kestrel")); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if err := s.AppendTurn(turn("s2", 1, "merlin")); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if err := s.WriteAnalysis(&models.AnalysisRecord{SessionID: "s2"}); err != nil {
		t.Fatalf("WriteAnalysis() error = %v", err)
	}

	rows, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	byID := make(map[string]SessionSummary)
	for _, r := range rows {
		byID[r.ID] = r
	}
	if got := byID["s1"]; got.TurnCount != 0 || got.HasAnalysis {
		t.Errorf("s1 summary = %+v, want 0 turns and no analysis", got)
	}
	s2 := byID["s2"]
	if s2.TurnCount != 2 {
		t.Errorf("s2.TurnCount = %d, want 2", s2.TurnCount)
	}
	if !s2.HasAnalysis {
		t.Error("s2.HasAnalysis = false, want true")
	}
	if len([]rune(s2.Excerpt)) > excerptLen+3 {
		t.Errorf("excerpt too long: %d runes", len([]rune(s2.Excerpt)))
	}
	if !strings.HasSuffix(s2.Excerpt, "...") {
		t.Errorf("excerpt %q not truncated", s2.Excerpt)
	}
}

func TestSetState(t *testing.T) {
	s := newStore(t)
	createSession(t, s, "s1", "test")

	if err := s.SetState("s1", models.StatePaused); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	sess, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.State != models.StatePaused {
		t.Errorf("State = %q, want %q", sess.State, models.StatePaused)
	}
	if err := s.SetState("nope", models.StatePaused); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetState(unknown) error = %v, want ErrNotFound", err)
	}
}
