package fhir_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/beda-software/fhir-py/pkg/fhir"
	"github.com/beda-software/fhir-py/pkg/fhirclient"
	"github.com/stretchr/testify/require"
)

// newTestClient wires a client against an httptest server.
func newTestClient(t *testing.T, handler http.Handler) *fhir.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := fhirclient.New(&fhir.Config{BaseURL: server.URL})
	require.NoError(t, err)

	return client
}

// newCachingTestClient wires a client with an in-memory cache enabled.
func newCachingTestClient(t *testing.T, handler http.Handler) *fhir.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := fhirclient.New(&fhir.Config{
		BaseURL: server.URL,
		Cache:   &fhir.CacheConfig{Type: fhir.CacheTypeMemory, MaxSize: 100},
	})
	require.NoError(t, err)

	return client
}

func writeJSON(t *testing.T, writer http.ResponseWriter, status int, value any) {
	t.Helper()

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	require.NoError(t, json.NewEncoder(writer).Encode(value))
}

// searchBundle renders a searchset Bundle body from resource field maps.
func searchBundle(total *int, entries ...map[string]any) map[string]any {
	bundleEntries := make([]any, 0, len(entries))
	for _, entry := range entries {
		bundleEntries = append(bundleEntries, map[string]any{"resource": entry})
	}

	bundle := map[string]any{
		"resourceType": "Bundle",
		"type":         "searchset",
		"entry":        bundleEntries,
	}

	if total != nil {
		bundle["total"] = *total
	}

	return bundle
}

func intPtr(value int) *int {
	return &value
}
