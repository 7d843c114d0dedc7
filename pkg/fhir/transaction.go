package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// BundleType selects the processing mode of a submitted bundle.
type BundleType string

const (
	// BundleTypeTransaction processes all entries atomically.
	BundleTypeTransaction BundleType = "transaction"
	// BundleTypeBatch processes entries independently.
	BundleTypeBatch BundleType = "batch"
)

// TransactionBuilder accumulates entries for a transaction or batch bundle.
// Entries referencing each other use the urn:uuid full urls assigned at add
// time. The builder is not safe for concurrent use.
type TransactionBuilder struct {
	client     *Client
	bundleType BundleType
	entries    []BundleEntry
}

// Transaction starts an atomic bundle.
func (c *Client) Transaction() *TransactionBuilder {
	return &TransactionBuilder{client: c, bundleType: BundleTypeTransaction}
}

// Batch starts an independent-entries bundle.
func (c *Client) Batch() *TransactionBuilder {
	return &TransactionBuilder{client: c, bundleType: BundleTypeBatch}
}

// Create adds a POST entry and returns the urn:uuid full url other entries
// may use to reference this one.
func (t *TransactionBuilder) Create(resource *Resource) (string, error) {
	data, err := resource.MarshalJSON()
	if err != nil {
		return "", err
	}

	fullURL := "urn:uuid:" + uuid.NewString()
	t.entries = append(t.entries, BundleEntry{
		FullURL:  fullURL,
		Resource: data,
		Request: &BundleRequest{
			Method: http.MethodPost,
			URL:    resource.ResourceType(),
		},
	})

	return fullURL, nil
}

// CreateIfNoneExist adds a conditional POST entry guarded by the given
// search params.
func (t *TransactionBuilder) CreateIfNoneExist(resource *Resource, params Params) (string, error) {
	data, err := resource.MarshalJSON()
	if err != nil {
		return "", err
	}

	fullURL := "urn:uuid:" + uuid.NewString()
	t.entries = append(t.entries, BundleEntry{
		FullURL:  fullURL,
		Resource: data,
		Request: &BundleRequest{
			Method:      http.MethodPost,
			URL:         resource.ResourceType(),
			IfNoneExist: EncodeParams(params),
		},
	})

	return fullURL, nil
}

// Update adds a PUT entry for a resource that already has an id.
func (t *TransactionBuilder) Update(resource *Resource) error {
	if resource.ID() == "" {
		return fmt.Errorf("%w for transaction update", ErrMissingID)
	}

	data, err := resource.MarshalJSON()
	if err != nil {
		return err
	}

	t.entries = append(t.entries, BundleEntry{
		Resource: data,
		Request: &BundleRequest{
			Method: http.MethodPut,
			URL:    resource.Reference(),
		},
	})

	return nil
}

// Delete adds a DELETE entry for a "Type/id" reference.
func (t *TransactionBuilder) Delete(reference string) {
	t.entries = append(t.entries, BundleEntry{
		Request: &BundleRequest{
			Method: http.MethodDelete,
			URL:    reference,
		},
	})
}

// Get adds a GET entry for a "Type/id" reference.
func (t *TransactionBuilder) Get(reference string) {
	t.entries = append(t.entries, BundleEntry{
		Request: &BundleRequest{
			Method: http.MethodGet,
			URL:    reference,
		},
	})
}

// Len reports the number of accumulated entries.
func (t *TransactionBuilder) Len() int {
	return len(t.entries)
}

// Bundle renders the accumulated entries without submitting them.
func (t *TransactionBuilder) Bundle() *Bundle {
	return &Bundle{
		ResourceType: "Bundle",
		Type:         string(t.bundleType),
		Entry:        append([]BundleEntry(nil), t.entries...),
	}
}

// Execute submits the bundle to the server root and returns the response
// bundle. Cached snapshots of deleted entries are invalidated.
func (t *TransactionBuilder) Execute(ctx context.Context) (*Bundle, error) {
	data, _, err := t.client.execute(ctx, http.MethodPost, "", t.Bundle(), nil)
	if err != nil {
		return nil, fmt.Errorf("executing %s bundle: %w", t.bundleType, err)
	}

	var response Bundle
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("%w: parsing bundle response: %v", ErrInvalidResponse, err)
	}

	if response.ResourceType != "Bundle" {
		return nil, fmt.Errorf("%w: expected Bundle, got %s", ErrInvalidResponse, response.ResourceType)
	}

	for _, entry := range t.entries {
		if entry.Request != nil && entry.Request.Method == http.MethodDelete {
			t.client.cacheDelete(ctx, entry.Request.URL)
		}
	}

	return &response, nil
}
