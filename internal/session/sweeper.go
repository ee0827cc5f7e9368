package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fieldline/trajet/internal/models"
)

// sweepParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var sweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// DefaultSweepCron runs the sweep once a minute.
const DefaultSweepCron = "* * * * *"

// Sweep ends and evicts registry sessions that have sat in a fatal pause
// longer than ttl, and evicts completed sessions whose state is already
// fully persisted. It returns the number of sessions evicted.
func Sweep(reg *Registry, ttl time.Duration, log *slog.Logger) int {
	if log == nil {
		log = slog.Default()
	}
	evicted := 0
	for _, s := range reg.List() {
		switch s.State() {
		case models.StateComplete:
			reg.Remove(s.ID())
			evicted++
		case models.StatePaused:
			err, at := s.FatalError()
			if err == nil || time.Since(at) < ttl {
				continue
			}
			if endErr := s.End(); endErr != nil {
				log.Warn("sweep: end session", "session", s.ID(), "error", endErr)
			}
			reg.Remove(s.ID())
			log.Info("swept fatal-paused session", "session", s.ID(), "paused_for", time.Since(at), "cause", err)
			evicted++
		}
	}
	return evicted
}

// RunSweeper runs Sweep on the given cron cadence until ctx is cancelled.
// An unparseable expression falls back to a once-a-minute sweep.
func RunSweeper(ctx context.Context, reg *Registry, ttl time.Duration, cronExpr string, log *slog.Logger) {
	sched, err := sweepParser.Parse(cronExpr)
	if err != nil {
		if log != nil {
			log.Warn("sweeper: bad cron expression, using default", "expr", cronExpr, "error", err)
		}
		sched, _ = sweepParser.Parse(DefaultSweepCron)
	}
	timer := time.NewTimer(time.Until(sched.Next(time.Now())))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			Sweep(reg, ttl, log)
			timer.Reset(time.Until(sched.Next(time.Now())))
		}
	}
}
