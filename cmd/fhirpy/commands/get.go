package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewGetCommand creates the get command.
func NewGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <Type/id>",
		Short: "Fetch a resource by reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !strings.Contains(args[0], "/") {
				return fmt.Errorf("%w, got %q", ErrReferenceRequired, args[0])
			}

			client, err := CreateClient()
			if err != nil {
				return err
			}

			resource, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("getting %s: %w", args[0], err)
			}

			return outputResource(resource)
		},
	}
}
