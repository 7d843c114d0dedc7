package fhir_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/beda-software/fhir-py/pkg/fhir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()

		_, err := fhir.NewClient(nil, nil)
		require.ErrorIs(t, err, fhir.ErrConfigRequired)
	})

	t.Run("nil executor", func(t *testing.T) {
		t.Parallel()

		_, err := fhir.NewClient(&fhir.Config{BaseURL: "https://fhir.example.com"}, nil)
		require.ErrorIs(t, err, fhir.ErrArgument)
	})
}

func TestClientGet(t *testing.T) {
	t.Parallel()

	t.Run("fetches by reference", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, http.MethodGet, request.Method)
			assert.Equal(t, "/Patient/p1", request.URL.Path)
			writeJSON(t, writer, http.StatusOK, map[string]any{
				"resourceType": "Patient",
				"id":           "p1",
				"name":         []any{map[string]any{"text": "John"}},
			})
		}))

		resource, err := client.Get(context.Background(), "Patient/p1")
		require.NoError(t, err)
		assert.Equal(t, "Patient/p1", resource.Reference())
	})

	t.Run("rejects a bare type", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			t.Error("no request expected")
		}))

		_, err := client.Get(context.Background(), "Patient")
		require.ErrorIs(t, err, fhir.ErrArgument)
	})

	t.Run("rejects a mismatching response type", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writeJSON(t, writer, http.StatusOK, map[string]any{
				"resourceType": "Practitioner",
				"id":           "p1",
			})
		}))

		_, err := client.Get(context.Background(), "Patient/p1")
		require.ErrorIs(t, err, fhir.ErrInvalidResponse)
	})

	t.Run("maps not found", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writeJSON(t, writer, http.StatusNotFound, map[string]any{
				"resourceType": "OperationOutcome",
			})
		}))

		_, err := client.Get(context.Background(), "Patient/missing")
		require.ErrorIs(t, err, fhir.ErrResourceNotFound)
	})
}

func TestClientPatch(t *testing.T) {
	t.Parallel()

	t.Run("patches by reference", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, http.MethodPatch, request.Method)
			assert.Equal(t, "/Patient/p1", request.URL.Path)

			var body map[string]any
			require.NoError(t, json.NewDecoder(request.Body).Decode(&body))
			assert.Equal(t, map[string]any{"active": true}, body)

			writeJSON(t, writer, http.StatusOK, map[string]any{
				"resourceType": "Patient",
				"id":           "p1",
				"active":       true,
			})
		}))

		resource, err := client.Patch(context.Background(), "Patient/p1", map[string]any{"active": true})
		require.NoError(t, err)

		active, ok := resource.Get("active")
		require.True(t, ok)
		assert.Equal(t, true, active)
	})

	t.Run("requires an id", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			t.Error("no request expected")
		}))

		_, err := client.Patch(context.Background(), "Patient", map[string]any{"active": true})
		require.ErrorIs(t, err, fhir.ErrMissingID)
	})
}

func TestClientDelete(t *testing.T) {
	t.Parallel()

	t.Run("deletes by reference", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, http.MethodDelete, request.Method)
			assert.Equal(t, "/Patient/p1", request.URL.Path)
			writer.WriteHeader(http.StatusNoContent)
		}))

		require.NoError(t, client.Delete(context.Background(), "Patient/p1"))
	})

	t.Run("requires an id", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			t.Error("no request expected")
		}))

		err := client.Delete(context.Background(), "Patient")
		require.ErrorIs(t, err, fhir.ErrMissingID)
	})
}

func TestClientExecute(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "/Patient/$match", request.URL.Path)
		writeJSON(t, writer, http.StatusOK, map[string]any{
			"resourceType": "Bundle",
			"type":         "searchset",
		})
	}))

	data, err := client.Execute(context.Background(), http.MethodPost, "Patient/$match", map[string]any{
		"resourceType": "Parameters",
	}, nil)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "Bundle", body["resourceType"])
}

func TestClientCaching(t *testing.T) {
	t.Parallel()

	t.Run("resolution hits the cache after create", func(t *testing.T) {
		t.Parallel()

		var requests atomic.Int64

		client := newCachingTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			requests.Add(1)
			writeJSON(t, writer, http.StatusCreated, map[string]any{
				"resourceType": "Patient",
				"id":           "p1",
				"name":         []any{map[string]any{"text": "John"}},
			})
		}))

		patient := client.Resource("Patient", map[string]any{
			"name": []any{map[string]any{"text": "John"}},
		})
		require.NoError(t, patient.Create(context.Background()))
		require.EqualValues(t, 1, requests.Load())

		resolved, err := client.Reference("Patient", "p1").ToResource(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Patient/p1", resolved.Reference())
		assert.EqualValues(t, 1, requests.Load(), "resolution should not touch the server")
	})

	t.Run("WithoutCache bypasses the cache", func(t *testing.T) {
		t.Parallel()

		var requests atomic.Int64

		client := newCachingTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			requests.Add(1)

			switch {
			case request.Method == http.MethodGet && request.URL.Path == "/Patient":
				writeJSON(t, writer, http.StatusOK, searchBundle(nil, map[string]any{
					"resourceType": "Patient",
					"id":           "p1",
				}))
			default:
				writeJSON(t, writer, http.StatusOK, map[string]any{
					"resourceType": "Patient",
					"id":           "p1",
				})
			}
		}))

		_, err := client.Get(context.Background(), "Patient/p1")
		require.NoError(t, err)

		_, err = client.Reference("Patient", "p1").ToResource(context.Background(), fhir.WithoutCache())
		require.NoError(t, err)
		assert.EqualValues(t, 2, requests.Load())
	})

	t.Run("delete invalidates the entry", func(t *testing.T) {
		t.Parallel()

		var searches atomic.Int64

		client := newCachingTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			switch request.Method {
			case http.MethodDelete:
				writer.WriteHeader(http.StatusNoContent)
			case http.MethodGet:
				if request.URL.Path == "/Patient" {
					searches.Add(1)
					writeJSON(t, writer, http.StatusOK, searchBundle(nil, map[string]any{
						"resourceType": "Patient",
						"id":           "p1",
					}))

					return
				}

				writeJSON(t, writer, http.StatusOK, map[string]any{
					"resourceType": "Patient",
					"id":           "p1",
				})
			}
		}))

		ctx := context.Background()

		_, err := client.Get(ctx, "Patient/p1")
		require.NoError(t, err)

		require.NoError(t, client.Delete(ctx, "Patient/p1"))

		// The cache no longer answers, so resolution searches the server.
		_, err = client.Reference("Patient", "p1").ToResource(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, searches.Load())
	})

	t.Run("ClearCache by type keeps other types", func(t *testing.T) {
		t.Parallel()

		var searches atomic.Int64

		client := newCachingTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			switch request.URL.Path {
			case "/Patient", "/Observation":
				searches.Add(1)
				resourceType := request.URL.Path[1:]
				writeJSON(t, writer, http.StatusOK, searchBundle(nil, map[string]any{
					"resourceType": resourceType,
					"id":           "one",
				}))
			default:
				var body map[string]any

				switch {
				case request.URL.Path == "/Patient/p1":
					body = map[string]any{"resourceType": "Patient", "id": "p1"}
				default:
					body = map[string]any{"resourceType": "Observation", "id": "o1"}
				}

				writeJSON(t, writer, http.StatusOK, body)
			}
		}))

		ctx := context.Background()

		_, err := client.Get(ctx, "Patient/p1")
		require.NoError(t, err)
		_, err = client.Get(ctx, "Observation/o1")
		require.NoError(t, err)

		require.NoError(t, client.ClearCache(ctx, "Patient"))

		// The observation still resolves from cache, the patient does not.
		_, err = client.Reference("Observation", "o1").ToResource(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, searches.Load())

		_, err = client.Reference("Patient", "p1").ToResource(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, searches.Load())
	})

	t.Run("ClearCache drops every entry", func(t *testing.T) {
		t.Parallel()

		var searches atomic.Int64

		client := newCachingTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.URL.Path == "/Patient" {
				searches.Add(1)
				writeJSON(t, writer, http.StatusOK, searchBundle(nil, map[string]any{
					"resourceType": "Patient",
					"id":           "p1",
				}))

				return
			}

			writeJSON(t, writer, http.StatusOK, map[string]any{
				"resourceType": "Patient",
				"id":           "p1",
			})
		}))

		ctx := context.Background()

		_, err := client.Get(ctx, "Patient/p1")
		require.NoError(t, err)

		require.NoError(t, client.ClearCache(ctx))

		_, err = client.Reference("Patient", "p1").ToResource(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, searches.Load())
	})
}

func TestClientResourceFromStruct(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {}))

	type HumanName struct {
		Given  []string `json:"given,omitempty"`
		Family string   `json:"family,omitempty"`
	}

	type Patient struct {
		Name      []HumanName `json:"name,omitempty"`
		BirthDate string      `json:"birthDate,omitempty"`
	}

	resource, err := client.ResourceFromStruct("Patient", Patient{
		Name:      []HumanName{{Given: []string{"John"}, Family: "Thompson"}},
		BirthDate: "1990-06-15",
	})
	require.NoError(t, err)
	assert.Equal(t, "Patient", resource.ResourceType())
	assert.Equal(t, "Thompson", resource.GetByPath("name.0.family", ""))
	assert.Equal(t, "1990-06-15", resource.GetByPath("birthDate", ""))

	_, err = client.ResourceFromStruct("Patient", []string{"not", "an", "object"})
	require.ErrorIs(t, err, fhir.ErrArgument)
}

func TestClientReferenceTo(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {}))

	saved := client.Resource("Patient", map[string]any{"id": "p1"})

	reference, err := client.ReferenceTo(saved)
	require.NoError(t, err)
	assert.Equal(t, "Patient/p1", reference.Reference())

	_, err = client.ReferenceTo(client.Resource("Patient", nil))
	require.ErrorIs(t, err, fhir.ErrResourceNotFound)
}

func TestClientString(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {}))
	assert.Equal(t, "<Client "+client.BaseURL()+">", client.String())
}
