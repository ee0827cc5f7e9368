package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fieldline/trajet/internal/agent"
	"github.com/fieldline/trajet/internal/backend"
	"github.com/fieldline/trajet/internal/basin"
	"github.com/fieldline/trajet/internal/feed"
	"github.com/fieldline/trajet/internal/metrics"
	"github.com/fieldline/trajet/internal/models"
)

// transcriptWindow caps how many recent turns are replayed into a
// generation prompt.
const transcriptWindow = 24

// loop is the session goroutine. It drains queued commands between turns
// and runs at most one generation call at a time, so the embedding
// sequence the metrics engine sees is strictly ordered.
func (s *Session) loop() {
	defer func() {
		s.drainCommands()
		s.hub.Close()
		close(s.done)
	}()
	for {
		if s.isEnding() {
			s.finalize()
			return
		}
		switch s.State() {
		case models.StateRunning:
			// Queued commands take priority over the next scheduled turn.
			select {
			case cmd := <-s.cmds:
				s.handle(cmd)
			case <-s.nudge:
			default:
				s.step()
			}
		default: // paused or awaiting human input
			select {
			case cmd := <-s.cmds:
				s.handle(cmd)
			case <-s.nudge:
			}
		}
	}
}

// step runs one scheduled turn: select a speaker, generate, record.
func (s *Session) step() {
	if s.sched.MaxTurns > 0 && s.TurnCount() >= s.sched.MaxTurns {
		s.log.Info("turn budget reached, ending session", "session", s.id, "turns", s.TurnCount())
		s.mu.Lock()
		s.ending = true
		s.mu.Unlock()
		return
	}

	speaker := s.nextSpeaker()
	if speaker == agent.HumanID {
		s.setState(models.StateAwaitingHuman, agent.HumanID, nil)
		return
	}

	a := s.byID[speaker]
	s.afterStateChange(models.StateRunning, speaker, nil)
	res, err := s.generate(a)
	if err != nil {
		if s.isEnding() {
			return
		}
		s.fatal(fmt.Errorf("session: generate for %s: %w", a.ID, err))
		return
	}
	if s.isEnding() {
		// Cancelled after the call returned: the result is discarded,
		// never recorded.
		return
	}
	if err := s.record(a.ID, res.Text, res.Latency, true); err != nil {
		if s.isEnding() {
			return
		}
		s.fatal(err)
	}
}

// handle processes one queued command and replies to its caller.
func (s *Session) handle(cmd command) {
	var err error
	switch cmd.kind {
	case cmdHuman:
		err = s.handleHuman(cmd.text)
	case cmdForce:
		err = s.handleForce(cmd.agent)
	case cmdInject:
		err = s.handleInject(cmd.text)
	}
	cmd.reply <- err
}

func (s *Session) handleHuman(text string) error {
	if st := s.State(); st != models.StateAwaitingHuman {
		return fmt.Errorf("%w: human turn while %s", ErrInvalidTransition, st)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("session: empty human turn")
	}
	if err := s.record(agent.HumanID, text, 0, true); err != nil {
		if !s.isEnding() {
			s.fatal(err)
		}
		return err
	}
	s.setState(models.StateRunning, "", nil)
	return nil
}

func (s *Session) handleForce(id string) error {
	st := s.State()
	if st != models.StateRunning && st != models.StateAwaitingHuman {
		return fmt.Errorf("%w: force invoke while %s", ErrInvalidTransition, st)
	}
	a, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAgent, id)
	}
	res, err := s.generate(a)
	if err != nil {
		if s.isEnding() {
			return ErrSessionFinalized
		}
		err = fmt.Errorf("session: generate for %s: %w", a.ID, err)
		s.fatal(err)
		return err
	}
	if s.isEnding() {
		return ErrSessionFinalized
	}
	if err := s.record(a.ID, res.Text, res.Latency, true); err != nil {
		if s.isEnding() {
			return ErrSessionFinalized
		}
		s.fatal(err)
		return err
	}
	if st == models.StateAwaitingHuman {
		s.setState(models.StateRunning, "", nil)
	}
	return nil
}

func (s *Session) handleInject(text string) error {
	st := s.State()
	if st != models.StateRunning && st != models.StateAwaitingHuman {
		return fmt.Errorf("%w: inject while %s", ErrInvalidTransition, st)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("session: empty injected prompt")
	}
	if err := s.record(agent.SystemID, text, 0, false); err != nil {
		if s.isEnding() {
			return ErrSessionFinalized
		}
		s.fatal(err)
		return err
	}
	return nil
}

// nextSpeaker selects who speaks next: participants outside their
// cooldown window, preferring the least recently spoken, ties broken by a
// seeded draw. When everyone is cooling down the cooldown is relaxed
// rather than stalling the dialogue.
func (s *Session) nextSpeaker() string {
	s.mu.Lock()
	idx := len(s.turns)
	last := make(map[string]int, len(s.lastSpoke))
	for k, v := range s.lastSpoke {
		last[k] = v
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(s.agents)+1)
	for _, a := range s.agents {
		ids = append(ids, a.ID)
	}
	if s.sched.HumanParticipant {
		ids = append(ids, agent.HumanID)
	}

	var eligible []string
	for _, id := range ids {
		at, spoke := last[id]
		if !spoke || idx-at > s.sched.Cooldown {
			eligible = append(eligible, id)
		}
	}
	if len(eligible) == 0 {
		eligible = ids
	}

	var best []string
	bestAt := idx + 1
	for _, id := range eligible {
		at, spoke := last[id]
		if !spoke {
			at = -1
		}
		switch {
		case at < bestAt:
			bestAt = at
			best = []string{id}
		case at == bestAt:
			best = append(best, id)
		}
	}
	if len(best) == 1 {
		return best[0]
	}
	return best[s.rng.Intn(len(best))]
}

// generate runs one cancellable, retried generation call. End cancels the
// context directly, so an in-flight call never outlives the session.
func (s *Session) generate(a agent.Agent) (*backend.GenResult, error) {
	ctx, cancel := s.callContext()
	defer cancel()

	req := backend.GenRequest{
		System:   a.SystemPrompt(),
		Prompt:   s.prompt(a),
		Sampling: a.Traits.Sampling(),
	}
	var res *backend.GenResult
	err := backend.Retry(ctx, s.maxRetries, s.backoff, func() error {
		var err error
		res, err = s.gen.Generate(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// embed computes the turn's vector through the per-turn cache, with the
// same retry budget and cancellation as generation.
func (s *Session) embed(idx int, text string) ([]float64, error) {
	ctx, cancel := s.callContext()
	defer cancel()

	var vec []float64
	err := backend.Retry(ctx, s.maxRetries, s.backoff, func() error {
		var err error
		vec, err = s.emb.EmbedTurn(ctx, idx, text)
		return err
	})
	return vec, err
}

// callContext returns a context for one backend call, registered so that
// End can cancel it.
func (s *Session) callContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.ending {
		cancel()
	}
	s.genCancel = cancel
	s.mu.Unlock()
	return ctx, func() {
		cancel()
		s.mu.Lock()
		s.genCancel = nil
		s.mu.Unlock()
	}
}

// record appends one turn: embed, update metrics, classify, publish,
// persist. consumeCooldown is false for synthetic system turns.
func (s *Session) record(speaker, text string, latency time.Duration, consumeCooldown bool) error {
	s.mu.Lock()
	idx := len(s.turns)
	prev := ""
	if idx > 0 {
		prev = s.turns[idx-1].Content
	}
	s.mu.Unlock()

	vec, err := s.embed(idx, text)
	if err != nil {
		return fmt.Errorf("session: embed turn %d: %w", idx, err)
	}
	snap, err := s.engine.AddTurn(speaker, vec)
	if err != nil {
		return fmt.Errorf("session: metrics for turn %d: %w", idx, err)
	}

	sig := basin.ExtractSignals(text, prev)
	label := s.classify.Classify(snap, sig, convergingAt(s.engine, idx))
	pattern := s.coherence.Observe(label)

	t := Turn{
		Idx:       idx,
		Speaker:   speaker,
		Content:   text,
		Latency:   latency,
		Embedding: vec,
		Basin:     label,
		Timestamp: time.Now().UTC(),
	}
	s.mu.Lock()
	s.turns = append(s.turns, t)
	if consumeCooldown {
		s.lastSpoke[speaker] = idx
	}
	s.mu.Unlock()

	s.persistTurn(t, snap)
	s.hub.Publish(feed.Event{
		Type:      feed.EventTurn,
		SessionID: s.id,
		Data: feed.TurnData{
			Turn:      t.Idx,
			Speaker:   t.Speaker,
			Content:   t.Content,
			LatencyMs: t.Latency.Milliseconds(),
		},
	})
	s.hub.Publish(feed.Event{
		Type:      feed.EventMetrics,
		SessionID: s.id,
		Data: feed.MetricsData{
			Turn:           t.Idx,
			Basin:          string(label),
			Coherence:      string(pattern),
			IntegrityLabel: snap.IntegrityLabel,
			IntegrityScore: snap.IntegrityScore,
			Velocity:       snap.Velocity.Ptr(),
			Curvature:      snap.Curvature.Ptr(),
			Alpha:          snap.Alpha.Ptr(),
			Voice:          snap.Voice.Ptr(),
		},
	})
	return nil
}

// convergingAt reports whether consecutive embeddings are drawing
// together at turn i: the step length has stopped growing.
func convergingAt(e *metrics.Engine, i int) bool {
	if i < 2 {
		return false
	}
	cur, prev := e.Velocity(i), e.Velocity(i-1)
	return cur.Defined && prev.Defined && cur.V <= prev.V
}

// persistTurn writes the turn and its metrics point. Persistence failures
// are logged, not fatal: the in-memory series stays authoritative.
func (s *Session) persistTurn(t Turn, snap metrics.Snapshot) {
	if s.rec == nil {
		return
	}
	embJSON, _ := json.Marshal(t.Embedding)
	if err := s.rec.AppendTurn(&models.TurnRecord{
		SessionID: s.id,
		Idx:       t.Idx,
		Speaker:   t.Speaker,
		Content:   t.Content,
		LatencyMs: int(t.Latency.Milliseconds()),
		Embedding: string(embJSON),
		Basin:     string(t.Basin),
	}); err != nil {
		s.log.Error("persist turn", "session", s.id, "turn", t.Idx, "error", err)
	}
	if err := s.rec.AppendMetrics(&models.MetricsPoint{
		SessionID:      s.id,
		Idx:            t.Idx,
		Velocity:       snap.Velocity.Ptr(),
		Curvature:      snap.Curvature.Ptr(),
		Alpha:          snap.Alpha.Ptr(),
		Voice:          snap.Voice.Ptr(),
		IntegrityScore: snap.IntegrityScore,
		IntegrityLabel: snap.IntegrityLabel,
		Basin:          string(t.Basin),
	}); err != nil {
		s.log.Error("persist metrics", "session", s.id, "turn", t.Idx, "error", err)
	}
}

// fatal pauses the session on an exhausted backend retry budget and
// surfaces the error on the feed. Skipping the turn instead would break
// the gapless index invariant the metrics series depends on.
func (s *Session) fatal(err error) {
	s.log.Error("session paused on fatal backend error", "session", s.id, "error", err)
	s.mu.Lock()
	s.fatalErr = err
	s.fatalAt = time.Now().UTC()
	s.state = models.StatePaused
	s.mu.Unlock()
	s.afterStateChange(models.StatePaused, "", err)
}

// finalize runs the batch analysis, persists it, and completes the
// session.
func (s *Session) finalize() {
	result := s.buildAnalysis()
	var endErr error
	if s.rec != nil {
		if err := s.rec.WriteAnalysis(result); err != nil {
			endErr = fmt.Errorf("session: write analysis: %w", err)
		} else if err := s.rec.MarkFinalized(s.id, s.emb.Dim()); err != nil {
			endErr = fmt.Errorf("session: finalize record: %w", err)
		}
	}
	s.mu.Lock()
	s.state = models.StateComplete
	s.result = result
	s.endErr = endErr
	s.mu.Unlock()
	s.hub.Publish(feed.Event{
		Type:      feed.EventState,
		SessionID: s.id,
		Data:      feed.StateData{State: models.StateComplete},
	})
	s.log.Info("session complete", "session", s.id, "turns", s.TurnCount(), "dominant", result.DominantBasin)
}

// drainCommands answers any commands still queued when the loop exits.
func (s *Session) drainCommands() {
	for {
		select {
		case cmd := <-s.cmds:
			cmd.reply <- ErrSessionFinalized
		default:
			return
		}
	}
}

// prompt assembles the generation prompt: the provocation plus the recent
// transcript, addressed to the next speaker.
func (s *Session) prompt(a agent.Agent) string {
	turns := s.Turns()
	if len(turns) > transcriptWindow {
		turns = turns[len(turns)-transcriptWindow:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Provocation: %s\n\n", s.provocation)
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n\n", s.displayName(t.Speaker), t.Content)
	}
	fmt.Fprintf(&b, "%s speaks next.", a.Name)
	return b.String()
}

func (s *Session) displayName(id string) string {
	switch id {
	case agent.HumanID:
		return "Human"
	case agent.SystemID:
		return "Moderator"
	}
	if a, ok := s.byID[id]; ok {
		return a.Name
	}
	return id
}
