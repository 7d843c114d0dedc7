package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewPatchCommand creates the patch command.
func NewPatchCommand() *cobra.Command {
	var (
		data string
		file string
	)

	cmd := &cobra.Command{
		Use:   "patch <Type/id>",
		Short: "Partially update a resource",
		Long: `Apply a partial update to a resource.

  fhirpy patch Patient/p1 --data '{"active": true}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !strings.Contains(args[0], "/") {
				return fmt.Errorf("%w, got %q", ErrReferenceRequired, args[0])
			}

			fields, err := readBody(data, file)
			if err != nil {
				return err
			}

			client, err := CreateClient()
			if err != nil {
				return err
			}

			resource, err := client.Patch(cmd.Context(), args[0], fields)
			if err != nil {
				return fmt.Errorf("patching %s: %w", args[0], err)
			}

			return outputResource(resource)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "partial body as a JSON string")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file holding the partial body, or - for stdin")

	return cmd
}
