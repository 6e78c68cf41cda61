package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/kgraph/internal/adapters/driving/tui"
	"github.com/custodia-labs/kgraph/internal/core/domain"
)

const defaultPollInterval = 2 * time.Second

var (
	generateID     string
	generateWatch  bool
	generateDetach bool
	statusHistory  int
	listLimit      int
	pollInterval   = defaultPollInterval
)

// isTerminal reports whether progress can be drawn interactively.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// watchProgress runs the interactive progress view.
var watchProgress = func(ctx context.Context, graphID string) (domain.GraphRecord, error) {
	return tui.Watch(ctx, &tui.Ports{Graphs: graphService}, graphID)
}

var generateCmd = &cobra.Command{
	Use:   "generate [query...]",
	Short: "Generate a knowledge graph for a query",
	Long: `Expands the query into subtopics, retrieves passages for each, writes one
article per subtopic and links them into a graph.

By default the command waits for the pipeline and prints a summary. Use
--detach to return the graph id immediately, or --watch to follow progress.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

var statusCmd = &cobra.Command{
	Use:   "status [uuid]",
	Short: "Show the pipeline status of a graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var graphCmd = &cobra.Command{
	Use:   "graph [uuid]",
	Short: "Print a generated graph as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraph,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List generated graphs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	generateCmd.Flags().StringVar(&generateID, "uuid", "", "graph id (default: new)")
	generateCmd.Flags().BoolVarP(&generateWatch, "watch", "w", false, "follow progress until the pipeline finishes")
	generateCmd.Flags().BoolVarP(&generateDetach, "detach", "d", false, "start in the background and print the graph id")
	generateCmd.MarkFlagsMutuallyExclusive("watch", "detach")
	rootCmd.AddCommand(generateCmd)

	statusCmd.Flags().IntVar(&statusHistory, "history", 0, "also show this many past status changes")
	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(graphCmd)

	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of graphs")
	rootCmd.AddCommand(listCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	id := generateID
	if id == "" {
		id = uuid.NewString()
	}

	if !generateWatch && !generateDetach {
		cmd.Printf("Generating graph %s...\n", id)
		graph, err := graphService.Generate(cmd.Context(), id, query)
		if err != nil {
			return fmt.Errorf("generate failed: %w", err)
		}
		printGraphSummary(cmd, id, graph)
		return nil
	}

	if err := graphService.Start(id, query); err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if generateDetach {
		cmd.Println(id)
		return nil
	}

	var rec domain.GraphRecord
	var err error
	if isTerminal() {
		rec, err = watchProgress(cmd.Context(), id)
	} else {
		rec, err = pollStatus(cmd, id)
	}
	if err != nil {
		return err
	}

	st, _ := domain.ParseStatus(rec.Status) //nolint:errcheck // unknown status renders as-is
	if st.Stage == domain.StageError {
		return fmt.Errorf("graph %s failed", id)
	}
	graph, err := graphService.Graph(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}
	printGraphSummary(cmd, id, graph)
	return nil
}

// pollStatus prints each status change until the pipeline reaches a
// terminal stage. Used when stdout is not a terminal.
func pollStatus(cmd *cobra.Command, graphID string) (domain.GraphRecord, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := ""
	for {
		rec, err := graphService.Status(cmd.Context(), graphID)
		if err != nil {
			return rec, fmt.Errorf("polling status: %w", err)
		}
		if rec.Status != last {
			cmd.Printf("%s  %s\n", rec.UpdatedAt.Format(time.TimeOnly), rec.Status)
			last = rec.Status
		}
		if st, err := domain.ParseStatus(rec.Status); err == nil && st.Stage.IsTerminal() {
			return rec, nil
		}

		select {
		case <-cmd.Context().Done():
			return rec, cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

func printGraphSummary(cmd *cobra.Command, id string, g domain.KnowledgeGraph) {
	cmd.Printf("Graph:  %s\n", id)
	cmd.Printf("Name:   %s\n", g.Name)
	cmd.Printf("Nodes:  %d\n", len(g.Nodes))
	cmd.Printf("Links:  %d\n", len(g.Links))
	for _, n := range g.Nodes {
		cmd.Printf("  - %s\n", n.Title)
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}
	rec, err := graphService.Status(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	cmd.Printf("Graph:   %s\n", rec.UUID)
	if rec.Title != "" {
		cmd.Printf("Title:   %s\n", rec.Title)
	}
	if rec.Query != "" {
		cmd.Printf("Query:   %s\n", rec.Query)
	}
	st, perr := domain.ParseStatus(rec.Status)
	if perr != nil {
		cmd.Printf("Status:  %s\n", rec.Status)
	} else {
		cmd.Printf("Status:  %s\n", st.Stage)
		if len(st.Topics) > 0 {
			cmd.Printf("Topics:  %s\n", strings.Join(st.Topics, ", "))
		}
	}
	cmd.Printf("Updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
	for _, id := range graphService.Running() {
		if id == rec.UUID {
			cmd.Println("Running: yes")
			break
		}
	}

	if statusHistory <= 0 {
		return nil
	}
	events, err := graphService.History(cmd.Context(), args[0], statusHistory)
	if err != nil {
		return fmt.Errorf("history failed: %w", err)
	}
	cmd.Println()
	cmd.Println("History:")
	for _, e := range events {
		cmd.Printf("  %s  %s\n", e.At.Format(time.RFC3339), e.Status)
	}
	return nil
}

func runGraph(cmd *cobra.Command, args []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}
	g, err := graphService.Graph(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}
	return outputJSON(cmd, g)
}

func runList(cmd *cobra.Command, _ []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}
	records, err := graphService.List(cmd.Context(), listLimit)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}
	if len(records) == 0 {
		cmd.Println("No graphs yet.")
		return nil
	}
	for _, r := range records {
		title := r.Title
		if title == "" {
			title = r.Query
		}
		cmd.Printf("%s  %-22s  %s\n", r.UUID, stageOf(r.Status), title)
	}
	return nil
}

// stageOf drops the topic list from a compound status.
func stageOf(status string) string {
	stage, _, _ := strings.Cut(status, ":")
	return stage
}
