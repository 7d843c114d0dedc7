package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration.
type Config struct {
	Server        string `json:"server,omitempty"        yaml:"server,omitempty"`
	Authorization string `json:"authorization,omitempty" yaml:"authorization,omitempty"`
	Username      string `json:"username,omitempty"      yaml:"username,omitempty"`
	Password      string `json:"password,omitempty"      yaml:"password,omitempty"`
	Output        string `json:"output,omitempty"        yaml:"output,omitempty"`
}

// configKeys lists the keys accepted by 'config set' and 'config unset'.
var configKeys = map[string]bool{
	"server":        true,
	"authorization": true,
	"username":      true,
	"password":      true,
	"output":        true,
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Manage fhirpy CLI configuration including server and credentials",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigUnsetCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the current CLI configuration with credentials masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			masked := *config
			if masked.Authorization != "" {
				masked.Authorization = Masked
			}

			if masked.Password != "" {
				masked.Password = Masked
			}

			switch viper.GetString("output") {
			case OutputFormatJSON:
				return outputJSON(masked)
			case OutputFormatYAML:
				return outputYAML(masked)
			default:
				table := tablewriter.NewWriter(os.Stdout)
				table.Header("Setting", "Value")

				_ = table.Append("server", orNotAvailable(masked.Server))
				_ = table.Append("authorization", orNotAvailable(masked.Authorization))
				_ = table.Append("username", orNotAvailable(masked.Username))
				_ = table.Append("password", orNotAvailable(masked.Password))
				_ = table.Append("output", orNotAvailable(masked.Output))

				return table.Render()
			}
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if !configKeys[key] {
				return fmt.Errorf("%w: %s", ErrInvalidConfigKey, key)
			}

			config := loadConfig()
			config.apply(key, value)

			if err := saveConfig(config); err != nil {
				return err
			}

			fmt.Printf("Set %s\n", key)

			return nil
		},
	}
}

func newConfigUnsetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Unset a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !configKeys[key] {
				return fmt.Errorf("%w: %s", ErrInvalidConfigKey, key)
			}

			config := loadConfig()
			config.apply(key, "")

			if err := saveConfig(config); err != nil {
				return err
			}

			fmt.Printf("Unset %s\n", key)

			return nil
		},
	}
}

func (c *Config) apply(key, value string) {
	switch key {
	case "server":
		c.Server = value
	case "authorization":
		c.Authorization = value
	case "username":
		c.Username = value
	case "password":
		c.Password = value
	case "output":
		c.Output = value
	}
}

func orNotAvailable(value string) string {
	if value == "" {
		return NotAvailable
	}

	return value
}

// configFilePath resolves the config file location, honoring --config.
func configFilePath() (string, error) {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		return cfgFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}

	return filepath.Join(home, ".fhirpy", "config.yml"), nil
}

// loadConfig reads the config file; a missing file yields an empty config.
func loadConfig() *Config {
	config := &Config{}

	path, err := configFilePath()
	if err != nil {
		return config
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return config
	}

	_ = yaml.Unmarshal(data, config)

	return config
}

// saveConfig writes the config file with owner-only permissions since it may
// hold credentials.
func saveConfig(config *Config) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigFileNotWritable, err)
	}

	return nil
}
