package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/beda-software/fhir-py/pkg/fhir"
	"github.com/beda-software/fhir-py/pkg/fhirclient"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Common string constants used throughout the commands package.
const (
	NotAvailable = "N/A"

	// Output formats.
	OutputFormatJSON = "json"
	OutputFormatYAML = "yaml"

	// JSON formatting.
	defaultJSONIndent = 2

	Masked = "***"
)

// Common static errors used throughout the commands package.
var (
	ErrServerRequired        = errors.New("FHIR server is required (use --server or 'fhirpy config set server')")
	ErrResourceTypeRequired  = errors.New("resource type is required")
	ErrReferenceRequired     = errors.New("a Type/id reference is required")
	ErrInvalidSearchArg      = errors.New("search arguments must look like key=value")
	ErrBodyRequired          = errors.New("resource body is required (use --data or --file)")
	ErrInvalidConfigKey      = errors.New("unknown configuration key")
	ErrUsernameRequired      = errors.New("username is required")
	ErrConfigFileNotWritable = errors.New("config file is not writable")
)

const clientTimeout = 30 * time.Second

// CreateClient builds a FHIR client from flags and config.
func CreateClient() (*fhir.Client, error) {
	server := viper.GetString("server")
	if server == "" {
		return nil, ErrServerRequired
	}

	config := &fhir.Config{
		BaseURL:       server,
		Authorization: viper.GetString("authorization"),
		Username:      viper.GetString("username"),
		Password:      viper.GetString("password"),
		HTTPTimeout:   clientTimeout,
	}

	client, err := fhirclient.New(config)
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	return client, nil
}

// parseSearchArgs splits key=value command arguments into search pairs
// accepted by SearchSet.Search.
func parseSearchArgs(args []string) ([]any, error) {
	pairs := make([]any, 0, len(args)*2)

	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSearchArg, arg)
		}

		pairs = append(pairs, key, value)
	}

	return pairs, nil
}

// outputResource renders one resource in the requested format. The table
// format falls back to indented JSON because a single resource has no
// meaningful columns.
func outputResource(resource *fhir.Resource) error {
	switch viper.GetString("output") {
	case OutputFormatYAML:
		return outputYAML(resource.Fields())
	default:
		return outputJSON(resource.Fields())
	}
}

func outputJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", strings.Repeat(" ", defaultJSONIndent))

	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}

	return nil
}

func outputYAML(value any) error {
	encoder := yaml.NewEncoder(os.Stdout)
	defer func() { _ = encoder.Close() }()

	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}

	return nil
}

// readBody loads a resource body from --data, --file, or stdin ("-").
func readBody(data, file string) (map[string]any, error) {
	var raw []byte

	switch {
	case data != "":
		raw = []byte(data)
	case file == "-":
		stdin, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}

		raw = stdin
	case file != "":
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}

		raw = content
	default:
		return nil, ErrBodyRequired
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parsing resource body: %w", err)
	}

	return fields, nil
}
