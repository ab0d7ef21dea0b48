package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"researchkb/internal/domain"
	"researchkb/internal/usecase"
)

var (
	researchQuery     string
	researchSummary   string
	researchKeyPoints []string
	researchSources   []string
	relatedLimit      int
	relatedMinScore   float64
	relatedJSON       bool
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Manage the research memory",
}

var researchStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Store a synthesized research result",
	Long: `Store a research summary under the query it answered. The summary is
read from the --summary flag, or from stdin when the flag is empty.
Sources are given as title=url pairs.

Example:
  researchkb research store -q "AI in healthcare" \
    --summary "AI assists diagnosis and drug discovery..." \
    --key-point "imaging diagnosis" --key-point "drug discovery" \
    --src "AI imaging=https://example.com/ai-imaging"`,
	RunE: runResearchStore,
}

var researchRelatedCmd = &cobra.Command{
	Use:   "related",
	Short: "Find research related to a query",
	RunE:  runResearchRelated,
}

func init() {
	rootCmd.AddCommand(researchCmd)
	researchCmd.AddCommand(researchStoreCmd)
	researchCmd.AddCommand(researchRelatedCmd)

	researchStoreCmd.Flags().StringVarP(&researchQuery, "query", "q", "", "research query (required)")
	researchStoreCmd.Flags().StringVar(&researchSummary, "summary", "", "summary text (default stdin)")
	researchStoreCmd.Flags().StringArrayVar(&researchKeyPoints, "key-point", nil, "key point (repeatable)")
	researchStoreCmd.Flags().StringArrayVar(&researchSources, "src", nil, "source as title=url (repeatable)")
	researchStoreCmd.MarkFlagRequired("query")

	researchRelatedCmd.Flags().StringVarP(&researchQuery, "query", "q", "", "query (required)")
	researchRelatedCmd.Flags().IntVarP(&relatedLimit, "limit", "n", 5, "maximum results")
	researchRelatedCmd.Flags().Float64Var(&relatedMinScore, "min-score", 0, "drop results below this score")
	researchRelatedCmd.Flags().BoolVar(&relatedJSON, "json", false, "output as JSON")
	researchRelatedCmd.MarkFlagRequired("query")
}

func runResearchStore(cmd *cobra.Command, args []string) error {
	summary := researchSummary
	if summary == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		summary = string(data)
	}

	sources := make([]domain.Source, 0, len(researchSources))
	for _, src := range researchSources {
		title, url, ok := strings.Cut(src, "=")
		if !ok {
			return fmt.Errorf("invalid source %q, expected title=url", src)
		}
		sources = append(sources, domain.Source{Title: title, URL: url})
	}

	s, err := openStores(GetConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.research.StoreResearch(researchQuery, usecase.ResearchSummary{
		Summary:   summary,
		KeyPoints: researchKeyPoints,
		Sources:   sources,
	})
	if err != nil {
		return fmt.Errorf("failed to store research: %w", err)
	}

	fmt.Printf("Stored research %s\n", id)
	return nil
}

type relatedOutput struct {
	ResearchID string   `json:"research_id"`
	Query      string   `json:"query"`
	Score      float64  `json:"score"`
	Summary    string   `json:"summary"`
	KeyPoints  []string `json:"key_points,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

func runResearchRelated(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	minScore := cfg.Retrieve.MinScore
	if relatedMinScore > 0 {
		minScore = relatedMinScore
	}

	s, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	related, err := s.research.FindRelatedResearch(researchQuery, relatedLimit, minScore)
	if err != nil {
		return fmt.Errorf("failed to find related research: %w", err)
	}

	if relatedJSON {
		out := make([]relatedOutput, len(related))
		for i, r := range related {
			out[i] = relatedOutput{
				ResearchID: r.Entry.ID,
				Query:      r.Entry.Query,
				Score:      r.Score,
				Summary:    r.Entry.Summary,
				KeyPoints:  r.Entry.KeyPoints,
				CreatedAt:  r.Entry.CreatedAt.Format("2006-01-02 15:04:05"),
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(related) == 0 {
		fmt.Println("No related research")
		return nil
	}

	for i, r := range related {
		fmt.Printf("%d. %s (score %.3f)\n", i+1, r.Entry.Query, r.Score)
		fmt.Printf("   %s\n", preview(r.Entry.Summary, 200))
		for _, point := range r.Entry.KeyPoints {
			fmt.Printf("   - %s\n", point)
		}
		fmt.Println()
	}
	return nil
}
