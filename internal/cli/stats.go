package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

type statsOutput struct {
	TotalDocuments     int            `json:"total_documents"`
	TotalChunks        int            `json:"total_chunks"`
	TotalContentLength int            `json:"total_content_length"`
	Categories         map[string]int `json:"categories"`
	UniqueTags         int            `json:"unique_tags"`
	ResearchEntries    int            `json:"research_entries"`
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := openStores(GetConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.kb.GetStatistics()
	if err != nil {
		return fmt.Errorf("failed to compute statistics: %w", err)
	}

	out := statsOutput{
		TotalDocuments:     stats.TotalDocuments,
		TotalChunks:        stats.TotalChunks,
		TotalContentLength: stats.TotalContentLength,
		Categories:         stats.Categories,
		UniqueTags:         stats.UniqueTags,
		ResearchEntries:    s.research.Count(),
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Documents:       %d\n", out.TotalDocuments)
	fmt.Printf("Chunks:          %d\n", out.TotalChunks)
	fmt.Printf("Content length:  %d\n", out.TotalContentLength)
	fmt.Printf("Unique tags:     %d\n", out.UniqueTags)
	fmt.Printf("Research:        %d\n", out.ResearchEntries)
	if len(out.Categories) > 0 {
		fmt.Println("Categories:")
		for category, count := range out.Categories {
			fmt.Printf("  %s: %d\n", category, count)
		}
	}
	return nil
}
