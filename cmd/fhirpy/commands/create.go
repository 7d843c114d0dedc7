package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCreateCommand creates the create command.
func NewCreateCommand() *cobra.Command {
	var (
		data string
		file string
	)

	cmd := &cobra.Command{
		Use:   "create <resource-type>",
		Short: "Create a resource",
		Long: `Create a resource from a JSON body.

  fhirpy create Patient --data '{"name": [{"given": ["John"]}]}'
  fhirpy create Patient --file patient.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := readBody(data, file)
			if err != nil {
				return err
			}

			client, err := CreateClient()
			if err != nil {
				return err
			}

			resource := client.Resource(args[0], fields)
			if err := resource.Create(cmd.Context()); err != nil {
				return fmt.Errorf("creating %s: %w", args[0], err)
			}

			fmt.Printf("Created %s\n", resource.Reference())

			return outputResource(resource)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "resource body as a JSON string")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file holding the resource body, or - for stdin")

	return cmd
}
