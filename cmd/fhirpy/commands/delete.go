package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <Type/id>",
		Short: "Delete a resource by reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !strings.Contains(args[0], "/") {
				return fmt.Errorf("%w, got %q", ErrReferenceRequired, args[0])
			}

			client, err := CreateClient()
			if err != nil {
				return err
			}

			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting %s: %w", args[0], err)
			}

			fmt.Printf("Deleted %s\n", args[0])

			return nil
		},
	}
}
