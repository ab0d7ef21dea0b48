package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"researchkb/internal/domain"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <doc-id>",
	Short: "Delete a document and all its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	s, err := openStores(GetConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.kb.DeleteDocument(args[0]); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no document with id %s", args[0])
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}

	fmt.Printf("Deleted document %s\n", args[0])
	return nil
}
