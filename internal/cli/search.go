package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchQuery    string
	searchTopK     int
	searchCategory string
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the knowledge base",
	Long: `Search stored documents by semantic similarity to a query.

Examples:
  researchkb search -q "neural network architectures" -k 3
  researchkb search -q "blockchain" -c research_report --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "restrict results to a category")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.MarkFlagRequired("query")
}

type searchResultOutput struct {
	DocID    string   `json:"doc_id"`
	Title    string   `json:"title"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Score    float64  `json:"score"`
	Text     string   `json:"text"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	topK := cfg.Retrieve.TopK
	if searchTopK > 0 {
		topK = searchTopK
	}

	s, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.kb.SearchKnowledge(searchQuery, topK, searchCategory)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		out := make([]searchResultOutput, len(results))
		for i, r := range results {
			out[i] = searchResultOutput{
				DocID:    r.DocID,
				Title:    r.Title,
				Category: r.Category,
				Tags:     r.Tags,
				Score:    r.Score,
				Text:     r.Text,
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(results) == 0 {
		fmt.Println("No results")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s (score %.3f)\n", i+1, r.Title, r.Score)
		if r.Category != "" {
			fmt.Printf("   category: %s", r.Category)
			if len(r.Tags) > 0 {
				fmt.Printf("  tags: %s", strings.Join(r.Tags, ", "))
			}
			fmt.Println()
		}
		fmt.Printf("   %s\n\n", preview(r.Text, 200))
	}
	return nil
}

func preview(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
