// Package session implements the dialogue session: a turn-selection
// scheduler that sequences speakers under cooldown and override rules,
// the per-turn metrics and basin pipeline it feeds, and the registry of
// live sessions. Each session runs one goroutine that drains a single
// ordered command queue; generation, embedding, metrics, and
// classification proceed strictly in turn order within it.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldline/trajet/internal/agent"
	"github.com/fieldline/trajet/internal/backend"
	"github.com/fieldline/trajet/internal/basin"
	"github.com/fieldline/trajet/internal/config"
	"github.com/fieldline/trajet/internal/feed"
	"github.com/fieldline/trajet/internal/metrics"
	"github.com/fieldline/trajet/internal/models"
)

// Recorder persists session artifacts. A nil Recorder disables
// persistence; the session then lives in memory only.
type Recorder interface {
	CreateSession(rec *models.SessionRecord) error
	AppendTurn(rec *models.TurnRecord) error
	AppendMetrics(p *models.MetricsPoint) error
	WriteAnalysis(a *models.AnalysisRecord) error
	SetState(sessionID, state string) error
	MarkFinalized(sessionID string, embeddingDim int) error
}

// Turn is one recorded utterance. Immutable once appended.
type Turn struct {
	Idx       int
	Speaker   string
	Content   string
	Latency   time.Duration
	Embedding []float64
	Basin     basin.Label
	Timestamp time.Time
}

// Params configures a new session.
type Params struct {
	Provocation string
	Agents      []agent.Agent
	Generator   backend.Generator
	Embedder    backend.Embedder
	Recorder    Recorder
	Feed        *feed.Hub    // created if nil
	Logger      *slog.Logger // slog.Default if nil
	Scheduler   config.SchedulerConfig
	Analysis    config.AnalysisConfig
	MaxRetries  int           // backend retry budget per turn
	Backoff     time.Duration // base retry backoff
}

type cmdKind int

const (
	cmdHuman cmdKind = iota
	cmdForce
	cmdInject
)

// command is one queued override or human input. Commands and scheduled
// generations share the session goroutine, so they are processed strictly
// in arrival order, never interleaved mid-turn.
type command struct {
	kind  cmdKind
	text  string
	agent string
	reply chan error
}

// Session owns one dialogue: its turn log, metrics accumulator, basin
// history, and scheduler state. Sessions share no mutable state with one
// another.
type Session struct {
	id          string
	provocation string
	createdAt   time.Time
	seed        int64

	agents []agent.Agent
	byID   map[string]agent.Agent

	gen        backend.Generator
	emb        *backend.TurnEmbedder
	maxRetries int
	backoff    time.Duration

	sched    config.SchedulerConfig
	analysis config.AnalysisConfig

	engine    *metrics.Engine
	classify  *basin.Classifier
	coherence *basin.CoherenceTracker

	hub *feed.Hub
	rec Recorder
	log *slog.Logger
	rng *rand.Rand

	cmds  chan command
	nudge chan struct{}
	done  chan struct{}

	mu        sync.Mutex
	state     string
	turns     []Turn
	lastSpoke map[string]int
	ending    bool
	endErr    error
	genCancel context.CancelFunc
	fatalErr  error
	fatalAt   time.Time
	result    *models.AnalysisRecord
}

// Start creates a session from a provocation and begins scheduling turns.
func Start(p Params) (*Session, error) {
	if strings.TrimSpace(p.Provocation) == "" {
		return nil, fmt.Errorf("session: provocation is required")
	}
	if len(p.Agents) == 0 {
		return nil, fmt.Errorf("session: at least one agent is required")
	}
	if p.Generator == nil || p.Embedder == nil {
		return nil, fmt.Errorf("session: generator and embedder are required")
	}

	seed := p.Scheduler.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := p.Feed
	if hub == nil {
		hub = feed.NewHub()
	}
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	backoff := p.Backoff
	if backoff == 0 {
		backoff = time.Second
	}

	s := &Session{
		id:          uuid.NewString(),
		provocation: p.Provocation,
		createdAt:   time.Now().UTC(),
		seed:        seed,
		agents:      p.Agents,
		byID:        make(map[string]agent.Agent, len(p.Agents)),
		gen:         p.Generator,
		emb:         backend.NewTurnEmbedder(p.Embedder),
		maxRetries:  maxRetries,
		backoff:     backoff,
		sched:       p.Scheduler,
		analysis:    p.Analysis,
		engine: metrics.NewEngine(p.Analysis.MinAlphaWindow,
			p.Analysis.Thresholds.Fragmented, p.Analysis.Thresholds.Rigid),
		classify:  basin.NewClassifier(p.Analysis),
		coherence: basin.NewCoherenceTracker(p.Analysis),
		hub:       hub,
		rec:       p.Recorder,
		log:       logger,
		rng:       rand.New(rand.NewSource(seed)),
		cmds:      make(chan command),
		nudge:     make(chan struct{}, 1),
		done:      make(chan struct{}),
		state:     models.StateRunning,
		lastSpoke: make(map[string]int),
	}
	for _, a := range p.Agents {
		s.byID[a.ID] = a
	}

	if s.rec != nil {
		roster, err := json.Marshal(p.Agents)
		if err != nil {
			return nil, fmt.Errorf("session: marshal roster: %w", err)
		}
		if err := s.rec.CreateSession(&models.SessionRecord{
			ID:          s.id,
			Provocation: p.Provocation,
			State:       models.StateRunning,
			Seed:        seed,
			Roster:      string(roster),
		}); err != nil {
			return nil, fmt.Errorf("session: create record: %w", err)
		}
	}

	s.log.Info("session started", "session", s.id, "agents", len(p.Agents), "seed", seed)
	go s.loop()
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Provocation returns the opening provocation text.
func (s *Session) Provocation() string { return s.provocation }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Seed returns the effective scheduler seed.
func (s *Session) Seed() int64 { return s.seed }

// Agents returns the fixed roster.
func (s *Session) Agents() []agent.Agent { return s.agents }

// Feed returns the session's live event hub.
func (s *Session) Feed() *feed.Hub { return s.hub }

// Done is closed when the session has completed and its analysis is
// written.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current scheduler state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TurnCount returns the number of recorded turns.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Turns returns a copy of the turn log.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// LiveBasins returns the basin labels assigned at turn time, in order.
func (s *Session) LiveBasins() []basin.Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]basin.Label, len(s.turns))
	for i, t := range s.turns {
		out[i] = t.Basin
	}
	return out
}

// FatalError returns the backend error that forced a fatal pause and when
// it happened, or nil if the session is not fatally paused.
func (s *Session) FatalError() (error, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr, s.fatalAt
}

// Analysis returns the end-of-session analysis, or ErrAnalysisNotReady
// before end() has completed.
func (s *Session) Analysis() (*models.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, ErrAnalysisNotReady
	}
	return s.result, nil
}

// Pause suspends scheduling. It takes effect between turns: a generation
// call already in flight is allowed to complete and its turn is recorded.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.ending || s.state == models.StateComplete {
		s.mu.Unlock()
		return ErrSessionFinalized
	}
	switch s.state {
	case models.StateRunning, models.StateAwaitingHuman:
		s.state = models.StatePaused
		s.mu.Unlock()
		s.afterStateChange(models.StatePaused, "", nil)
		s.wake()
		return nil
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, st)
	}
}

// Resume restarts scheduling on a paused session. Resuming a session that
// paused on a fatal backend error clears the error and retries from the
// next turn.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.ending || s.state == models.StateComplete {
		s.mu.Unlock()
		return ErrSessionFinalized
	}
	if s.state != models.StatePaused {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, st)
	}
	s.state = models.StateRunning
	s.fatalErr = nil
	s.fatalAt = time.Time{}
	s.mu.Unlock()
	s.afterStateChange(models.StateRunning, "", nil)
	s.wake()
	return nil
}

// End finalizes the session: an in-flight generation call is cancelled
// and its partial result discarded, the batch analysis runs over the full
// turn log, and the session becomes read-only. A second End is rejected
// with ErrSessionFinalized and writes nothing.
func (s *Session) End() error {
	s.mu.Lock()
	if s.ending || s.state == models.StateComplete {
		s.mu.Unlock()
		return ErrSessionFinalized
	}
	s.ending = true
	if s.genCancel != nil {
		s.genCancel()
	}
	s.mu.Unlock()
	s.wake()
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

// SubmitHumanTurn records the human participant's utterance. Valid only
// while the session is awaiting human input.
func (s *Session) SubmitHumanTurn(text string) error {
	return s.sendCommand(command{kind: cmdHuman, text: text, reply: make(chan error, 1)})
}

// ForceInvoke makes a specific agent speak next, bypassing its cooldown.
func (s *Session) ForceInvoke(agentID string) error {
	return s.sendCommand(command{kind: cmdForce, agent: agentID, reply: make(chan error, 1)})
}

// InjectPrompt records a synthetic system turn with the given text. No
// agent's cooldown slot is consumed and the rotation is unaffected.
func (s *Session) InjectPrompt(text string) error {
	return s.sendCommand(command{kind: cmdInject, text: text, reply: make(chan error, 1)})
}

func (s *Session) sendCommand(cmd command) error {
	select {
	case s.cmds <- cmd:
		return <-cmd.reply
	case <-s.done:
		return ErrSessionFinalized
	}
}

func (s *Session) isEnding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ending
}

// wake nudges the scheduler loop out of a blocking wait. Never blocks.
func (s *Session) wake() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// afterStateChange persists and publishes a state transition.
func (s *Session) afterStateChange(state, nextSpeaker string, cause error) {
	if s.rec != nil {
		if err := s.rec.SetState(s.id, state); err != nil {
			s.log.Error("persist session state", "session", s.id, "error", err)
		}
	}
	data := feed.StateData{State: state, NextSpeaker: nextSpeaker}
	if cause != nil {
		data.Error = cause.Error()
	}
	s.hub.Publish(feed.Event{Type: feed.EventState, SessionID: s.id, Data: data})
}

func (s *Session) setState(state, nextSpeaker string, cause error) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.afterStateChange(state, nextSpeaker, cause)
}
