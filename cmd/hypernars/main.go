// Package main provides the hypernars command line interface.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"hypernars/internal/config"
	"hypernars/internal/explain"
	"hypernars/internal/nar"
	"hypernars/internal/storage"
)

var (
	steps        int
	timeoutMS    int
	minExpect    float64
	format       string
	snapshotPath string
	snapshotName string
	deleteName   string
	verbose      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hypernars",
		Short: "A non-axiomatic reasoning engine over a hypergraph of beliefs",
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	evalCmd := &cobra.Command{
		Use:   "eval [statements or @file]",
		Short: "Ingest statements, run the reasoner, and print the resulting beliefs",
		Args:  cobra.ArbitraryArgs,
		RunE:  runEval,
	}
	evalCmd.Flags().IntVar(&steps, "steps", 100, "Reasoning steps to run after ingestion")
	evalCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "SQLite snapshot database to save the final state into")
	evalCmd.Flags().StringVar(&snapshotName, "load", "", "Snapshot name to restore from the database before ingesting")

	askCmd := &cobra.Command{
		Use:   "ask <question> [statements or @file]",
		Short: "Ask a question against ingested statements",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	askCmd.Flags().IntVar(&timeoutMS, "timeout", 3000, "Question timeout in milliseconds")
	askCmd.Flags().Float64Var(&minExpect, "min-expectation", 0.5, "Minimum answer expectation")

	explainCmd := &cobra.Command{
		Use:   "explain <edge-id> [statements or @file]",
		Short: "Explain how an edge was derived",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runExplain,
	}
	explainCmd.Flags().IntVar(&steps, "steps", 100, "Reasoning steps to run before explaining")
	explainCmd.Flags().StringVar(&format, "format", explain.FormatDetailed, "Explanation format")

	snapshotsCmd := &cobra.Command{
		Use:   "snapshots <database>",
		Short: "List or delete snapshots in a snapshot database",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshots,
	}
	snapshotsCmd.Flags().StringVar(&deleteName, "delete", "", "Delete the named snapshot instead of listing")

	rootCmd.AddCommand(evalCmd, askCmd, explainCmd, snapshotsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newReasoner() (*nar.Reasoner, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := zerolog.Disabled
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	return nar.New(cfg, nar.WithLogger(logger))
}

// gatherStatements expands @file arguments into their lines and keeps plain
// arguments as-is.
func gatherStatements(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "@") {
			out = append(out, arg)
			continue
		}
		f, err := os.Open(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("failed to open statement file: %w", err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "//") {
				continue
			}
			out = append(out, line)
		}
		closeErr := f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read statement file: %w", err)
		}
		if closeErr != nil {
			return nil, closeErr
		}
	}
	return out, nil
}

func ingest(r *nar.Reasoner, statements []string) error {
	for _, stmt := range statements {
		if _, err := r.NAL(stmt); err != nil {
			return fmt.Errorf("statement %q: %w", stmt, err)
		}
	}
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	r, err := newReasoner()
	if err != nil {
		return err
	}

	var store *storage.SnapshotStore
	if snapshotPath != "" {
		store, err = storage.OpenSnapshotStore(snapshotPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}
	if snapshotName != "" {
		if store == nil {
			return fmt.Errorf("--load requires --snapshot")
		}
		blob, err := store.Load(snapshotName)
		if err != nil {
			return err
		}
		if err := r.LoadState(blob); err != nil {
			return err
		}
		fmt.Printf("restored snapshot %q (step %d, %d edges)\n",
			snapshotName, r.CurrentStep(), r.Metrics().EdgeCount)
	}

	statements, err := gatherStatements(args)
	if err != nil {
		return err
	}
	if len(statements) == 0 && snapshotName == "" {
		return fmt.Errorf("nothing to do: give statements or --load a snapshot")
	}
	if err := ingest(r, statements); err != nil {
		return err
	}
	r.Run(steps)

	m := r.Metrics()
	fmt.Printf("steps: %d  edges: %d  derivations: %d\n", m.CurrentStep, m.EdgeCount, m.Derivations)
	for _, match := range mustQueryAll(r) {
		fmt.Printf("  %s  expectation=%.3f\n", match.EdgeID, match.Expectation)
	}

	if store != nil {
		blob, err := r.SaveState()
		if err != nil {
			return err
		}
		if err := store.Save("latest", m.CurrentStep, blob, time.Now()); err != nil {
			return err
		}
		fmt.Printf("saved snapshot to %s\n", snapshotPath)
	}
	return nil
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	store, err := storage.OpenSnapshotStore(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	if deleteName != "" {
		if err := store.Delete(deleteName); err != nil {
			return err
		}
		fmt.Printf("deleted snapshot %q\n", deleteName)
		return nil
	}

	infos, err := store.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no snapshots")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%s  step=%d  created=%s\n",
			info.Name, info.Step, info.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// mustQueryAll lists every stored edge with its expectation.
func mustQueryAll(r *nar.Reasoner) []nar.QueryMatch {
	var out []nar.QueryMatch
	for _, id := range r.EdgeIDs() {
		beliefs := r.GetBeliefs(id)
		if len(beliefs) == 0 {
			continue
		}
		out = append(out, nar.QueryMatch{
			EdgeID:      id,
			Expectation: beliefs[0].Truth.Expectation(),
		})
	}
	return out
}

func runAsk(cmd *cobra.Command, args []string) error {
	r, err := newReasoner()
	if err != nil {
		return err
	}
	statements, err := gatherStatements(args[1:])
	if err != nil {
		return err
	}
	if err := ingest(r, statements); err != nil {
		return err
	}

	future, err := r.Ask(args[0], nar.AskOptions{
		Timeout:        time.Duration(timeoutMS) * time.Millisecond,
		MinExpectation: minExpect,
	})
	if err != nil {
		return err
	}

	deadline := time.Now().Add(time.Duration(timeoutMS)*time.Millisecond + time.Second)
	for time.Now().Before(deadline) {
		select {
		case out := <-future.Done():
			if out.Err != nil {
				return out.Err
			}
			data, err := json.MarshalIndent(out.Answer, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		default:
		}
		if r.Run(50) == 0 {
			r.ExpireQuestions()
		}
		time.Sleep(2 * time.Millisecond)
	}
	return fmt.Errorf("no outcome before deadline")
}

func runExplain(cmd *cobra.Command, args []string) error {
	r, err := newReasoner()
	if err != nil {
		return err
	}
	statements, err := gatherStatements(args[1:])
	if err != nil {
		return err
	}
	if err := ingest(r, statements); err != nil {
		return err
	}
	r.Run(steps)

	out, err := r.Explain(args[0], explain.Options{Format: format})
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
