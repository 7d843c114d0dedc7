package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCountCommand creates the count command.
func NewCountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "count <resource-type> [param=value...]",
		Short: "Count matching resources",
		Long:  "Report the server-side total of resources matching the search, without fetching them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient()
			if err != nil {
				return err
			}

			pairs, err := parseSearchArgs(args[1:])
			if err != nil {
				return err
			}

			total, err := client.Resources(args[0]).Search(pairs...).Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("counting %s: %w", args[0], err)
			}

			fmt.Println(total)

			return nil
		},
	}
}
