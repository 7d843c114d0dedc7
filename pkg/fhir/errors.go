package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Static errors for the core taxonomy. Every public method either returns a
// fully-formed result or one of these (possibly wrapped with context).
var (
	ErrResourceNotFound       = errors.New("resource not found")
	ErrMultipleResourcesFound = errors.New("multiple resources found")
	ErrInvalidResponse        = errors.New("invalid response")
	ErrAuthorization          = errors.New("authorization failed")
	ErrImmutableField         = errors.New("field is immutable")
	ErrMissingID              = errors.New("resource id is required")
	ErrArgument               = errors.New("invalid argument")
	ErrUnsafeURL              = errors.New("url does not match configured base url")
	ErrConfigRequired         = errors.New("config is required")
	ErrBaseURLRequired        = errors.New("base url is required")
)

// Issue is a single OperationOutcome issue reported by the server.
type Issue struct {
	Severity    string `json:"severity"              yaml:"severity"`
	Code        string `json:"code"                  yaml:"code"`
	Diagnostics string `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// OperationOutcomeError is a server-reported validation or processing
// failure. Issues carries the parsed issue list when the response body was an
// OperationOutcome resource; Raw keeps the body otherwise.
type OperationOutcomeError struct {
	StatusCode int
	Issues     []Issue
	Raw        string
}

// Error implements the error interface.
func (e *OperationOutcomeError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("operation outcome (status %d): %s", e.StatusCode, e.Raw)
	}

	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s/%s: %s", issue.Severity, issue.Code, issue.Diagnostics))
	}

	return fmt.Sprintf("operation outcome (status %d): %s", e.StatusCode, strings.Join(parts, "; "))
}

// HasErrors reports whether any issue has fatal or error severity.
func (e *OperationOutcomeError) HasErrors() bool {
	for _, issue := range e.Issues {
		if issue.Severity == "fatal" || issue.Severity == "error" {
			return true
		}
	}

	return false
}

// ParseErrorResponse maps a completed non-2xx response to the error
// taxonomy: 404/410 to ErrResourceNotFound, 412 to ErrMultipleResourcesFound,
// 401/403 to ErrAuthorization, and everything else to an
// *OperationOutcomeError carrying the parsed issues when the body is an
// OperationOutcome.
func ParseErrorResponse(statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrResourceNotFound, statusCode)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%w: status %d", ErrMultipleResourcesFound, statusCode)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuthorization, statusCode)
	}

	outcome := &OperationOutcomeError{StatusCode: statusCode, Raw: string(body)}

	var parsed operationOutcome
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.ResourceType == "OperationOutcome" {
		outcome.Issues = parsed.Issue
	}

	return outcome
}

// IsNotFound checks if the error means zero matches or a 404/410 response.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound)
}

// IsMultipleFound checks if the error means more than one match where exactly
// one was required.
func IsMultipleFound(err error) bool {
	return errors.Is(err, ErrMultipleResourcesFound)
}

// IsOperationOutcome extracts a server-reported OperationOutcome failure.
func IsOperationOutcome(err error) (*OperationOutcomeError, bool) {
	outcome := &OperationOutcomeError{}
	if errors.As(err, &outcome) {
		return outcome, true
	}

	return nil, false
}
