//go:build integration

package integration

import (
	"os"
	"testing"

	"github.com/beda-software/fhir-py/pkg/fhir"
	"github.com/beda-software/fhir-py/pkg/fhirclient"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	ServerURL     string
	Authorization string
	Username      string
	Password      string
	Verbose       bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		ServerURL:     os.Getenv("FHIR_SERVER_URL"),
		Authorization: os.Getenv("FHIR_AUTHORIZATION"),
		Username:      os.Getenv("FHIR_USERNAME"),
		Password:      os.Getenv("FHIR_PASSWORD"),
		Verbose:       os.Getenv("FHIR_VERBOSE") == "true",
	}
}

// SkipIfMissingConfig skips test if required config is missing
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	if config.ServerURL == "" {
		t.Skip("FHIR_SERVER_URL not set, skipping integration test")
	}
}

// NewClient creates a client against the configured server
func (config *TestConfig) NewClient(t *testing.T) *fhir.Client {
	t.Helper()

	client, err := fhirclient.New(&fhir.Config{
		BaseURL:       config.ServerURL,
		Authorization: config.Authorization,
		Username:      config.Username,
		Password:      config.Password,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	return client
}
