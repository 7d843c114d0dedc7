// Package fhirclient provides the main entry point for creating FHIR API
// clients.
package fhirclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/beda-software/fhir-py/internal/auth"
	"github.com/beda-software/fhir-py/internal/transport"
	"github.com/beda-software/fhir-py/pkg/fhir"
)

// New creates a FHIR client from the given config.
func New(config *fhir.Config) (*fhir.Client, error) {
	if config == nil {
		return nil, fhir.ErrConfigRequired
	}

	if config.BaseURL == "" {
		return nil, fhir.ErrBaseURLRequired
	}

	// Normalize the base url
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}

	config.BaseURL = baseURL

	transportClient := transport.NewClient(baseURL, createTokenManager(config), createTransportOptions(config)...)

	client, err := fhir.NewClient(config, &executorAdapter{transport: transportClient})
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return client, nil
}

// NewWithEndpoint creates an unauthenticated client for the given base url.
func NewWithEndpoint(baseURL string) (*fhir.Client, error) {
	return New(&fhir.Config{BaseURL: baseURL})
}

// NewWithAuthorization creates a client sending the given Authorization
// header value, e.g. "Bearer eyJhbGciOi...".
func NewWithAuthorization(baseURL, authorization string) (*fhir.Client, error) {
	return New(&fhir.Config{BaseURL: baseURL, Authorization: authorization})
}

// NewWithBasicAuth creates a client using HTTP basic auth.
func NewWithBasicAuth(baseURL, username, password string) (*fhir.Client, error) {
	return New(&fhir.Config{BaseURL: baseURL, Username: username, Password: password})
}

// createTokenManager picks the token manager matching the configured
// credentials, or nil for anonymous access.
func createTokenManager(config *fhir.Config) auth.TokenManager {
	if config.Authorization != "" {
		return auth.NewStaticTokenManager(config.Authorization)
	}

	if config.Username != "" {
		return auth.NewBasicTokenManager(config.Username, config.Password)
	}

	return nil
}

// createTransportOptions builds transport options from config.
func createTransportOptions(config *fhir.Config) []transport.Option {
	var opts []transport.Option

	if config.Logger != nil {
		opts = append(opts, transport.WithLogger(&loggerAdapter{logger: config.Logger}))
		opts = append(opts, transport.WithDebug(true))
	}

	if config.UserAgent != "" {
		opts = append(opts, transport.WithUserAgent(config.UserAgent))
	}

	if len(config.ExtraHeaders) > 0 {
		opts = append(opts, transport.WithExtraHeaders(config.ExtraHeaders))
	}

	if config.HTTPTimeout > 0 {
		opts = append(opts, transport.WithTimeout(config.HTTPTimeout))
	}

	if config.RetryMax > 0 {
		opts = append(opts, transport.WithRetryConfig(config.RetryMax, config.RetryWaitMin, config.RetryWaitMax))
	}

	return opts
}

// executorAdapter implements fhir.Executor over the transport client.
type executorAdapter struct {
	transport *transport.Client
}

// Execute performs one exchange and translates the outcome into the client
// error taxonomy.
func (a *executorAdapter) Execute(ctx context.Context, req *fhir.ExecuteRequest) (json.RawMessage, int, error) {
	params := req.Params.Clone()
	params.Set("_format", "json")

	resp, err := a.transport.Do(ctx, &transport.Request{
		Method:   req.Method,
		Path:     req.Path,
		RawQuery: fhir.EncodeParams(params),
		Body:     req.Body,
		Headers:  req.Headers,
	})
	if err != nil {
		if errors.Is(err, transport.ErrUnsafeURL) {
			return nil, 0, fmt.Errorf("%w: %v", fhir.ErrUnsafeURL, err)
		}

		return nil, 0, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, fhir.ParseErrorResponse(resp.StatusCode, resp.Body)
	}

	return resp.Body, resp.StatusCode, nil
}

// loggerAdapter adapts fhir.Logger to transport.Logger.
type loggerAdapter struct {
	logger fhir.Logger
}

func (l *loggerAdapter) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug(msg, fields)
}

func (l *loggerAdapter) Info(msg string, fields map[string]interface{}) {
	l.logger.Info(msg, fields)
}

func (l *loggerAdapter) Warn(msg string, fields map[string]interface{}) {
	l.logger.Warn(msg, fields)
}

func (l *loggerAdapter) Error(msg string, fields map[string]interface{}) {
	l.logger.Error(msg, fields)
}
