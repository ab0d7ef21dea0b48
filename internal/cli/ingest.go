package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"researchkb/internal/adapter/fs"
)

var (
	ingestCategory string
	ingestTags     []string
	ingestIncludes []string
	ingestExcludes []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest text files into the knowledge base",
	Long: `Walk a directory and add every matching text file as a document.
Each file becomes one document titled after its base name, with the
file path recorded as provenance.

Examples:
  researchkb ingest ./docs -c documentation
  researchkb ingest . --include "**/*.md" -t handbook`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVarP(&ingestCategory, "category", "c", "", "category for ingested documents")
	ingestCmd.Flags().StringSliceVarP(&ingestTags, "tags", "t", nil, "comma-separated tags")
	ingestCmd.Flags().StringSliceVar(&ingestIncludes, "include", nil, "include globs (default from config)")
	ingestCmd.Flags().StringSliceVar(&ingestExcludes, "exclude", nil, "exclude globs (default from config)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	includes := cfg.Ingest.Includes
	if len(ingestIncludes) > 0 {
		includes = ingestIncludes
	}
	excludes := cfg.Ingest.Excludes
	if len(ingestExcludes) > 0 {
		excludes = ingestExcludes
	}

	walker := fs.NewWalker(includes, excludes)
	files, err := walker.Walk(path)
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No matching files found")
		return nil
	}

	s, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	bar := progressbar.Default(int64(len(files)), "ingesting")

	added := 0
	chunks := 0
	var failures []string
	for _, file := range files {
		result, err := s.kb.AddFile(file.Path, ingestCategory, ingestTags)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", file.Path, err))
			bar.Add(1)
			continue
		}
		added++
		chunks += result.ChunkCount
		bar.Add(1)
	}

	fmt.Printf("\nIngested %d/%d files (%d chunks)\n", added, len(files), chunks)
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "skipped %s\n", f)
	}
	return nil
}
