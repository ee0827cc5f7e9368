package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldline/trajet/internal/agent"
	"github.com/fieldline/trajet/internal/db"
	"github.com/fieldline/trajet/internal/feed"
	"github.com/fieldline/trajet/internal/models"
	"github.com/fieldline/trajet/internal/recorder"
	"github.com/fieldline/trajet/internal/session"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		turns      int
		seed       int64
		human      bool
	)

	cmd := &cobra.Command{
		Use:   "run <provocation>",
		Short: "Run one dialogue session in the terminal",
		Long:  "Starts a session from the given provocation, streams the transcript as it unfolds, and prints the trajectory analysis when it ends.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, configPath, args[0], turns, seed, human)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "trajet.yaml", "path to trajet config file")
	cmd.Flags().IntVarP(&turns, "turns", "n", 20, "turn budget (0 = run until interrupted)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "tie-break RNG seed (0 = time-based)")
	cmd.Flags().BoolVar(&human, "human", false, "join the rotation as a participant")
	return cmd
}

func runRun(cmd *cobra.Command, configPath, provocation string, turns int, seed int64, human bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	gen, emb, err := buildBackends(cfg.Backend)
	if err != nil {
		return err
	}
	agents := agent.FromConfig(cfg.Agents)
	if len(agents) == 0 {
		return fmt.Errorf("config has no agents")
	}

	sched := cfg.Scheduler
	sched.MaxTurns = turns
	if seed != 0 {
		sched.Seed = seed
	}
	if human {
		sched.HumanParticipant = true
	}

	// Subscribe before the first turn so nothing is missed.
	hub := feed.NewHub()
	sub := hub.Subscribe()

	sess, err := session.Start(session.Params{
		Provocation: provocation,
		Agents:      agents,
		Generator:   gen,
		Embedder:    emb,
		Recorder:    recorder.New(gormDB),
		Feed:        hub,
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		Scheduler:   sched,
		Analysis:    cfg.Analysis,
		MaxRetries:  cfg.Backend.MaxRetries,
		Backoff:     cfg.Backend.RetryBackoff.Std(),
	})
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(cmd.OutOrStdout(), "\nEnding session...")
		sess.End()
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s\n", sess.ID())
	fmt.Fprintf(out, "provocation: %s\n\n", provocation)

	stdin := bufio.NewScanner(cmd.InOrStdin())
	for ev := range sub.C {
		switch ev.Type {
		case feed.EventTurn:
			td, ok := ev.Data.(feed.TurnData)
			if !ok {
				continue
			}
			fmt.Fprintf(out, "[%d] %s: %s\n", td.Turn, td.Speaker, td.Content)
		case feed.EventMetrics:
			md, ok := ev.Data.(feed.MetricsData)
			if !ok {
				continue
			}
			if md.Basin != "" {
				fmt.Fprintf(out, "    basin=%s coherence=%s integrity=%s\n", md.Basin, md.Coherence, md.IntegrityLabel)
			}
		case feed.EventState:
			sd, ok := ev.Data.(feed.StateData)
			if !ok {
				continue
			}
			if sd.Error != "" {
				fmt.Fprintf(out, "!! paused: %s\n", sd.Error)
			}
			if sd.State == models.StateAwaitingHuman {
				text, err := promptHuman(out, stdin)
				if err != nil {
					sess.End()
					continue
				}
				if err := sess.SubmitHumanTurn(text); err != nil {
					fmt.Fprintf(out, "!! %v\n", err)
				}
			}
		}
	}
	<-sess.Done()

	result, err := sess.Analysis()
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	printAnalysis(out, result)
	return nil
}

// promptHuman reads one line of human input. io.EOF ends the session.
func promptHuman(out io.Writer, stdin *bufio.Scanner) (string, error) {
	for {
		fmt.Fprint(out, "you> ")
		if !stdin.Scan() {
			return "", io.EOF
		}
		text := strings.TrimSpace(stdin.Text())
		if text != "" {
			return text, nil
		}
	}
}
