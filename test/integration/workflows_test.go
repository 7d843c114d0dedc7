//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPatientLifecycle exercises create, fetch, patch, and delete against a
// live server.
func TestPatientLifecycle(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	client := config.NewClient(t)
	ctx := context.Background()

	patient := client.Resource("Patient", map[string]any{
		"name": []any{
			map[string]any{"given": []any{"Integration"}, "family": "Test"},
		},
		"birthDate": "1990-06-15",
	})

	require.NoError(t, patient.Create(ctx))
	require.NotEmpty(t, patient.ID())

	t.Cleanup(func() {
		_ = patient.Delete(context.Background())
	})

	fetched, err := client.Get(ctx, patient.Reference())
	require.NoError(t, err)
	assert.Equal(t, "Test", fetched.GetByPath("name.0.family", ""))

	require.NoError(t, patient.Patch(ctx, map[string]any{"active": true}))
	assert.Equal(t, true, patient.GetByPath("active", false))

	require.NoError(t, patient.Delete(ctx))
}

// TestSearchWorkflow exercises filtering, counting, and pagination against a
// live server.
func TestSearchWorkflow(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	client := config.NewClient(t)
	ctx := context.Background()

	patient := client.Resource("Patient", map[string]any{
		"name": []any{
			map[string]any{"given": []any{"Searchable"}, "family": "Workflow"},
		},
	})
	require.NoError(t, patient.Create(ctx))

	t.Cleanup(func() {
		_ = patient.Delete(context.Background())
	})

	total, err := client.Resources("Patient").Search("name", "Workflow").Count(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)

	found, err := client.Resources("Patient").
		Search("name", "Workflow").
		Limit(10).
		Fetch(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, found)

	first, err := client.Resources("Patient").Search("_id", patient.ID()).First(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, patient.Reference(), first.Reference())
}

// TestTransactionWorkflow submits a transaction Bundle and verifies both
// entries landed.
func TestTransactionWorkflow(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	client := config.NewClient(t)
	ctx := context.Background()

	builder := client.Transaction()

	patientURL, err := builder.Create(client.Resource("Patient", map[string]any{
		"name": []any{map[string]any{"family": "Transactional"}},
	}))
	require.NoError(t, err)

	_, err = builder.Create(client.Resource("Observation", map[string]any{
		"status":  "final",
		"code":    map[string]any{"text": "Body weight"},
		"subject": map[string]any{"reference": patientURL},
	}))
	require.NoError(t, err)

	response, err := builder.Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, response.Entry, 2)
}
