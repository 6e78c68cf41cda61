package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

const snippetLength = 160

var searchAllOpts struct {
	sources      []string
	maxResults   int
	batch        string
	strategy     string
	chunkSize    int
	chunkOverlap int
	language     string
	daysBack     int
	yearStart    int
	yearEnd      int
	json         bool
}

var searchAllCmd = &cobra.Command{
	Use:   "search-all [keywords...]",
	Short: "Retrieve and store passages from every source",
	Long: `Queries web search, Semantic Scholar, YouTube and news for the keywords,
splits what comes back into passages and stores them under one batch id.

Passages become available to vector-search once they are embedded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearchAll,
}

var vectorSearchOpts struct {
	topK      int
	sources   []string
	batch     string
	rerank    bool
	threshold float64
	weights   bool
	json      bool
}

var vectorSearchCmd = &cobra.Command{
	Use:   "vector-search [query]",
	Short: "Semantic search over stored passages",
	Long: `Ranks stored passages by embedding similarity to the query, optionally
restricted to a batch or to sources. With --rerank the top candidates are
rescored by the configured reranker.`,
	Args: cobra.ExactArgs(1),
	RunE: runVectorSearch,
}

func init() {
	f := searchAllCmd.Flags()
	f.StringSliceVarP(&searchAllOpts.sources, "sources", "s", nil, "sources to query (default: all enabled)")
	f.IntVarP(&searchAllOpts.maxResults, "max-results", "n", domain.DefaultMaxResultsPerSource, "results per source")
	f.StringVar(&searchAllOpts.batch, "batch", "", "batch id to store passages under (default: new)")
	f.StringVar(&searchAllOpts.strategy, "strategy", string(domain.ChunkRecursive), "chunking strategy")
	f.IntVar(&searchAllOpts.chunkSize, "chunk-size", domain.DefaultSearchChunkSize, "chunk size in tokens")
	f.IntVar(&searchAllOpts.chunkOverlap, "chunk-overlap", domain.DefaultSearchChunkOverlap, "chunk overlap in tokens")
	f.StringVar(&searchAllOpts.language, "language", domain.DefaultLanguage, "result language")
	f.IntVar(&searchAllOpts.daysBack, "days-back", domain.DefaultSearchDaysBack, "news look-back window in days")
	f.IntVar(&searchAllOpts.yearStart, "year-start", 0, "earliest publication year for papers")
	f.IntVar(&searchAllOpts.yearEnd, "year-end", 0, "latest publication year for papers")
	f.BoolVar(&searchAllOpts.json, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchAllCmd)

	v := vectorSearchCmd.Flags()
	v.IntVarP(&vectorSearchOpts.topK, "top-k", "k", domain.DefaultTopK, "number of results")
	v.StringSliceVarP(&vectorSearchOpts.sources, "sources", "s", nil, "restrict to these sources")
	v.StringVar(&vectorSearchOpts.batch, "batch", "", "restrict to one batch id")
	v.BoolVar(&vectorSearchOpts.rerank, "rerank", true, "rescore candidates with the reranker")
	v.Float64Var(&vectorSearchOpts.threshold, "threshold", 0, "drop results scoring below this")
	v.BoolVar(&vectorSearchOpts.weights, "weights", false, "apply per-source score weights")
	v.BoolVar(&vectorSearchOpts.json, "json", false, "output results as JSON")
	rootCmd.AddCommand(vectorSearchCmd)
}

func runSearchAll(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	sources, err := parseSourceFlag(searchAllOpts.sources)
	if err != nil {
		return err
	}
	req := domain.SearchAllRequest{
		Keywords:            strings.Join(args, " "),
		BatchUUID:           searchAllOpts.batch,
		Sources:             sources,
		MaxResultsPerSource: searchAllOpts.maxResults,
		ChunkingStrategy:    domain.ChunkStrategy(searchAllOpts.strategy),
		ChunkSize:           searchAllOpts.chunkSize,
		ChunkOverlap:        searchAllOpts.chunkOverlap,
		Language:            searchAllOpts.language,
		DaysBack:            searchAllOpts.daysBack,
		YearStart:           searchAllOpts.yearStart,
		YearEnd:             searchAllOpts.yearEnd,
	}

	result, err := retrievalService.SearchAll(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("search-all failed: %w", err)
	}

	if searchAllOpts.json {
		return outputJSON(cmd, result.Documents)
	}

	cmd.Printf("Batch: %s\n", result.BatchUUID)
	cmd.Printf("Stored %d passages\n\n", result.Count())
	for _, s := range domain.AllSources() {
		docs, ok := result.Documents[s]
		if !ok {
			continue
		}
		cmd.Printf("[%s] %d passages\n", s, len(docs))
		for i := range docs {
			title := docs[i].Metadata.Title
			if title == "" {
				title = docs[i].Metadata.URL
			}
			cmd.Printf("  - %s\n", title)
		}
	}
	return nil
}

func runVectorSearch(cmd *cobra.Command, args []string) error {
	if vectorService == nil {
		return domain.ErrEmbeddingUnavailable
	}

	sources, err := parseSourceFlag(vectorSearchOpts.sources)
	if err != nil {
		return err
	}
	results, err := vectorService.Search(cmd.Context(), domain.VectorQuery{
		Query:              args[0],
		TopK:               vectorSearchOpts.topK,
		Sources:            sources,
		BatchUUID:          vectorSearchOpts.batch,
		Rerank:             vectorSearchOpts.rerank,
		Threshold:          vectorSearchOpts.threshold,
		ApplySourceWeights: vectorSearchOpts.weights,
	})
	if err != nil {
		return fmt.Errorf("vector search failed: %w", err)
	}

	if vectorSearchOpts.json {
		return outputJSON(cmd, results)
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, r := range results {
		title := r.Metadata.Title
		if title == "" {
			title = r.Metadata.UUID
		}
		cmd.Printf("[%d] %s (%s, %.3f)\n", i+1, title, r.Metadata.Source, r.Score)
		cmd.Printf("    %s\n", snippet(r.Content, snippetLength))
		if r.Metadata.URL != "" {
			cmd.Printf("    %s\n", r.Metadata.URL)
		}
	}
	return nil
}

// parseSourceFlag returns nil when no sources were given so the service
// applies its own default set.
func parseSourceFlag(names []string) ([]domain.Source, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return domain.ParseSources(names)
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// snippet collapses whitespace and truncates to n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
