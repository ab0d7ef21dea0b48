package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
}

type documentOutput struct {
	DocID      string   `json:"doc_id"`
	Title      string   `json:"title"`
	Category   string   `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	ChunkCount int      `json:"chunk_count"`
	CreatedAt  string   `json:"created_at"`
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := openStores(GetConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	docs, err := s.kb.ListDocuments()
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if listJSON {
		out := make([]documentOutput, len(docs))
		for i, d := range docs {
			out[i] = documentOutput{
				DocID:      d.ID,
				Title:      d.Title,
				Category:   d.Category,
				Tags:       d.Tags,
				ChunkCount: len(d.ChunkIDs),
				CreatedAt:  d.CreatedAt.Format("2006-01-02 15:04:05"),
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(docs) == 0 {
		fmt.Println("No documents")
		return nil
	}

	for _, d := range docs {
		fmt.Printf("%s  %s\n", d.ID, d.Title)
		fmt.Printf("    category: %s  chunks: %d  added: %s\n",
			d.Category, len(d.ChunkIDs), d.CreatedAt.Format("2006-01-02 15:04"))
		if len(d.Tags) > 0 {
			fmt.Printf("    tags: %s\n", strings.Join(d.Tags, ", "))
		}
	}
	return nil
}
