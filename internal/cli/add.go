package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	addTitle    string
	addCategory string
	addTags     []string
	addSource   string
)

var addCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Add a document to the knowledge base",
	Long: `Add a text document to the knowledge base. Content is read from the
given file, or from stdin when no file is provided.

Examples:
  researchkb add --title "Deep Learning Basics" -c machine_learning notes.txt
  cat report.md | researchkb add --title "Q3 Report" -c reports -t quarterly,finance`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVar(&addTitle, "title", "", "document title (required)")
	addCmd.Flags().StringVarP(&addCategory, "category", "c", "", "document category")
	addCmd.Flags().StringSliceVarP(&addTags, "tags", "t", nil, "comma-separated tags")
	addCmd.Flags().StringVar(&addSource, "source", "", "free-text provenance")
	addCmd.MarkFlagRequired("title")
}

func runAdd(cmd *cobra.Command, args []string) error {
	var content string
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		content = string(data)
		if addSource == "" {
			addSource = args[0]
		}
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		content = string(data)
	}

	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("no content to add")
	}

	s, err := openStores(GetConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.kb.AddTextContent(content, addTitle, addCategory, addTags, addSource)
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}

	fmt.Printf("Added document %s (%d chunks)\n", result.DocID, result.ChunkCount)
	return nil
}
