package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/beda-software/fhir-py/pkg/fhir"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewSearchCommand creates the search command.
func NewSearchCommand() *cobra.Command {
	var (
		count    int
		page     int
		sort     []string
		elements []string
		include  []string
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "search <resource-type> [param=value...]",
		Short: "Search resources",
		Long: `Search resources of a type using FHIR search parameters.

Parameters use the condensed filter syntax, so prefixes and modifiers are
expressed with double underscores:

  fhirpy search Patient name=John birth_date__ge=1990 --count 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient()
			if err != nil {
				return err
			}

			pairs, err := parseSearchArgs(args[1:])
			if err != nil {
				return err
			}

			searchSet := client.Resources(args[0]).Search(pairs...)

			if count > 0 {
				searchSet = searchSet.Limit(count)
			}

			if page > 0 {
				searchSet = searchSet.Page(page)
			}

			if len(sort) > 0 {
				searchSet = searchSet.Sort(sort...)
			}

			if len(elements) > 0 {
				searchSet = searchSet.Elements(elements...)
			}

			for _, inc := range include {
				searchSet = applyInclude(searchSet, inc)
			}

			var resources []*fhir.Resource
			if all {
				resources, err = searchSet.FetchAll(cmd.Context())
			} else {
				resources, err = searchSet.Fetch(cmd.Context())
			}

			if err != nil {
				return fmt.Errorf("searching %s: %w", args[0], err)
			}

			return renderResources(resources)
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "page size (_count)")
	cmd.Flags().IntVar(&page, "page", 0, "page number to fetch")
	cmd.Flags().StringSliceVar(&sort, "sort", nil, "sort keys, prefix with - for descending")
	cmd.Flags().StringSliceVar(&elements, "elements", nil, "restrict returned elements")
	cmd.Flags().StringSliceVar(&include, "include", nil, "include referenced resources (Type:searchParam[:target], or *)")
	cmd.Flags().BoolVar(&all, "all", false, "follow pagination and fetch every page")

	return cmd
}

// applyInclude parses a Type:param[:target] flag value into an Include call.
func applyInclude(searchSet *fhir.SearchSet, spec string) *fhir.SearchSet {
	parts := strings.SplitN(spec, ":", 3)

	switch len(parts) {
	case 1:
		return searchSet.Include(parts[0], "")
	case 2:
		return searchSet.Include(parts[0], parts[1])
	default:
		return searchSet.Include(parts[0], parts[1], fhir.IncludeTarget(parts[2]))
	}
}

// renderResources prints a resource list in the requested output format.
func renderResources(resources []*fhir.Resource) error {
	switch viper.GetString("output") {
	case OutputFormatJSON, OutputFormatYAML:
		items := make([]map[string]any, 0, len(resources))
		for _, resource := range resources {
			items = append(items, resource.Fields())
		}

		if viper.GetString("output") == OutputFormatYAML {
			return outputYAML(items)
		}

		return outputJSON(items)
	default:
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Type", "ID", "Last Updated")

		for _, resource := range resources {
			lastUpdated, _ := fhir.GetByPath(resource.Fields(), fhir.ParsePath("meta.lastUpdated"), NotAvailable).(string)
			_ = table.Append(resource.ResourceType(), orNotAvailable(resource.ID()), lastUpdated)
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("rendering table: %w", err)
		}

		fmt.Printf("\nShowing %d resources\n", len(resources))

		return nil
	}
}
