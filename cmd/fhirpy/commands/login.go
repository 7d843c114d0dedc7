package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	var (
		server   string
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to a FHIR server",
		Long:  "Store credentials for a FHIR server and verify them with a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				server = viper.GetString("server")
			}

			if server == "" {
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("FHIR server base URL: ")
				server, _ = reader.ReadString('\n')
				server = strings.TrimSpace(server)
			}

			if server == "" {
				return ErrServerRequired
			}

			if username == "" {
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Username: ")
				username, _ = reader.ReadString('\n')
				username = strings.TrimSpace(username)
			}

			if username == "" {
				return ErrUsernameRequired
			}

			if password == "" {
				fmt.Print("Password: ")

				bytePassword, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Println()

				if err != nil {
					return fmt.Errorf("reading password: %w", err)
				}

				password = string(bytePassword)
			}

			config := loadConfig()
			config.Server = server
			config.Username = username
			config.Password = password

			if err := saveConfig(config); err != nil {
				return err
			}

			viper.Set("server", server)
			viper.Set("username", username)
			viper.Set("password", password)

			// Verify the credentials with a cheap request
			client, err := CreateClient()
			if err != nil {
				return err
			}

			if _, err := client.Execute(cmd.Context(), "GET", "metadata", nil, nil); err != nil {
				return fmt.Errorf("verifying credentials: %w", err)
			}

			fmt.Printf("Logged in to %s as %s\n", server, username)

			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username for basic auth")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password for basic auth")

	return cmd
}
