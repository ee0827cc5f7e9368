package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fieldline/trajet/internal/models"
	"github.com/fieldline/trajet/internal/recorder"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsAnalysisCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "trajet.yaml", "path to trajet config file")
	return cmd
}

func runSessionsList(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	summaries, err := recorder.New(gormDB).ListSessions()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tTURNS\tANALYZED\tCREATED\tPROVOCATION")
	for _, s := range summaries {
		analyzed := "-"
		if s.HasAnalysis {
			analyzed = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			s.ID, s.State, s.TurnCount, analyzed,
			s.CreatedAt.Format("2006-01-02 15:04:05"), s.Excerpt)
	}
	w.Flush()
	return nil
}

func newSessionsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "trajet.yaml", "path to trajet config file")
	return cmd
}

func runSessionsShow(cmd *cobra.Command, configPath, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	store := recorder.New(gormDB)

	rec, err := store.GetSession(id)
	if err != nil {
		return err
	}
	turns, err := store.GetTurns(id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", rec.ID)
	fmt.Fprintf(out, "State:       %s\n", rec.State)
	fmt.Fprintf(out, "Seed:        %d\n", rec.Seed)
	fmt.Fprintf(out, "Created:     %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	if rec.FinalizedAt != nil {
		fmt.Fprintf(out, "Finalized:   %s\n", rec.FinalizedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "\nProvocation:\n%s\n\n", rec.Provocation)
	for _, tr := range turns {
		fmt.Fprintf(out, "[%d] %s: %s\n", tr.Idx, tr.Speaker, tr.Content)
		if tr.Basin != "" {
			fmt.Fprintf(out, "    basin=%s\n", tr.Basin)
		}
	}
	return nil
}

func newSessionsAnalysisCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "analysis <id>",
		Short: "Print a session's trajectory analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsAnalysis(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "trajet.yaml", "path to trajet config file")
	return cmd
}

func runSessionsAnalysis(cmd *cobra.Command, configPath, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	rec, err := recorder.New(gormDB).GetAnalysis(id)
	if err != nil {
		return err
	}
	printAnalysis(cmd.OutOrStdout(), rec)
	return nil
}

func printAnalysis(out io.Writer, a *models.AnalysisRecord) {
	fmt.Fprintf(out, "Dominant basin:   %s (%.0f%% of turns)\n", a.DominantBasin, a.DominantShare*100)
	fmt.Fprintf(out, "Transitions:      %d\n", a.Transitions)
	fmt.Fprintf(out, "Integrity:        %.2f (%s)\n", a.IntegrityScore, a.IntegrityLabel)
	fmt.Fprintf(out, "Alpha:            %s (%s)\n", formatOptional(a.Alpha), a.AlphaStatus)
	fmt.Fprintf(out, "Voice:            %s\n", formatOptional(a.Voice))
	fmt.Fprintf(out, "Entropy shift:    %s\n", formatOptional(a.EntropyShift))

	if dist := decodeShares(a.CoherenceDist); len(dist) > 0 {
		fmt.Fprintf(out, "Coherence:        %s\n", strings.Join(dist, ", "))
	}
	if counts := decodeCounts(a.TurnCounts); len(counts) > 0 {
		fmt.Fprintf(out, "Turns by speaker: %s\n", strings.Join(counts, ", "))
	}
	if seq := decodeSequence(a.BasinSequence); seq != "" {
		fmt.Fprintf(out, "Basin sequence:   %s\n", seq)
	}
}

func formatOptional(v *float64) string {
	if v == nil {
		return "undefined"
	}
	return fmt.Sprintf("%.3f", *v)
}

func decodeShares(raw string) []string {
	var m map[string]float64
	if json.Unmarshal([]byte(raw), &m) != nil {
		return nil
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("%s %.0f%%", k, v*100))
	}
	sort.Strings(parts)
	return parts
}

func decodeCounts(raw string) []string {
	var m map[string]int
	if json.Unmarshal([]byte(raw), &m) != nil {
		return nil
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("%s %d", k, v))
	}
	sort.Strings(parts)
	return parts
}

func decodeSequence(raw string) string {
	var seq []string
	if json.Unmarshal([]byte(raw), &seq) != nil || len(seq) == 0 {
		return ""
	}
	return strings.Join(seq, " > ")
}
