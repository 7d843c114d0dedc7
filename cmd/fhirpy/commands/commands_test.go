package commands_test

import (
	"testing"

	"github.com/beda-software/fhir-py/cmd/fhirpy/commands"
	"github.com/stretchr/testify/assert"
)

func TestNewConfigCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewConfigCommand()
	assert.Equal(t, "config", cmd.Use)
	assert.Equal(t, "Manage CLI configuration", cmd.Short)

	subcommands := cmd.Commands()
	assert.Len(t, subcommands, 3)

	commandNames := make([]string, 0, len(subcommands))
	for _, subcmd := range subcommands {
		commandNames = append(commandNames, subcmd.Name())
	}

	assert.Contains(t, commandNames, "show")
	assert.Contains(t, commandNames, "set")
	assert.Contains(t, commandNames, "unset")
}

func TestNewSearchCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewSearchCommand()
	assert.Equal(t, "search", cmd.Name())
	assert.Equal(t, "Search resources", cmd.Short)

	assert.NotNil(t, cmd.Flags().Lookup("count"))
	assert.NotNil(t, cmd.Flags().Lookup("page"))
	assert.NotNil(t, cmd.Flags().Lookup("sort"))
	assert.NotNil(t, cmd.Flags().Lookup("elements"))
	assert.NotNil(t, cmd.Flags().Lookup("include"))
	assert.NotNil(t, cmd.Flags().Lookup("all"))
}

func TestNewCountCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewCountCommand()
	assert.Equal(t, "count", cmd.Name())
	assert.Equal(t, "Count matching resources", cmd.Short)
}

func TestNewGetCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewGetCommand()
	assert.Equal(t, "get", cmd.Name())
	assert.Equal(t, "Fetch a resource by reference", cmd.Short)
}

func TestNewCreateCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewCreateCommand()
	assert.Equal(t, "create", cmd.Name())
	assert.NotNil(t, cmd.Flags().Lookup("data"))
	assert.NotNil(t, cmd.Flags().Lookup("file"))
}

func TestNewPatchCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewPatchCommand()
	assert.Equal(t, "patch", cmd.Name())
	assert.NotNil(t, cmd.Flags().Lookup("data"))
	assert.NotNil(t, cmd.Flags().Lookup("file"))
}

func TestNewDeleteCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewDeleteCommand()
	assert.Equal(t, "delete", cmd.Name())
	assert.Equal(t, "Delete a resource by reference", cmd.Short)
}

func TestNewLoginCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewLoginCommand()
	assert.Equal(t, "login", cmd.Name())
	assert.NotNil(t, cmd.Flags().Lookup("username"))
	assert.NotNil(t, cmd.Flags().Lookup("password"))
}

func TestNewVersionCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewVersionCommand("1.2.3", "abc123", "2026-01-01")
	assert.Equal(t, "version", cmd.Name())
	assert.Equal(t, "Display version information", cmd.Short)
}
