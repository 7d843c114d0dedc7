package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beda-software/fhir-py/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTokenManager for testing.
type MockTokenManager struct {
	token string
	err   error
}

func (m *MockTokenManager) GetToken(ctx context.Context) (string, error) {
	return m.token, m.err
}

func (m *MockTokenManager) RefreshToken(ctx context.Context) error {
	return nil
}

func (m *MockTokenManager) SetToken(token string, expiresAt time.Time) {
	m.token = token
}

// MockLogger for testing.
type MockLogger struct {
	logs []map[string]interface{}
}

func (l *MockLogger) Debug(msg string, fields map[string]interface{}) {
	l.logs = append(l.logs, map[string]interface{}{"level": "debug", "msg": msg, "fields": fields})
}

func (l *MockLogger) Info(msg string, fields map[string]interface{}) {
	l.logs = append(l.logs, map[string]interface{}{"level": "info", "msg": msg, "fields": fields})
}

func (l *MockLogger) Warn(msg string, fields map[string]interface{}) {
	l.logs = append(l.logs, map[string]interface{}{"level": "warn", "msg": msg, "fields": fields})
}

func (l *MockLogger) Error(msg string, fields map[string]interface{}) {
	l.logs = append(l.logs, map[string]interface{}{"level": "error", "msg": msg, "fields": fields})
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Do(t *testing.T) {
	t.Parallel()
	t.Run("successful request", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/Patient/p1", request.URL.Path)
			assert.Equal(t, "GET", request.Method)
			assert.Equal(t, "Bearer test-token", request.Header.Get("Authorization"))
			assert.Equal(t, "application/json", request.Header.Get("Accept"))

			response := map[string]string{"resourceType": "Patient", "id": "p1"}
			_ = json.NewEncoder(writer).Encode(response)
		}))
		defer server.Close()

		tokenManager := &MockTokenManager{token: "Bearer test-token"}
		client := transport.NewClient(server.URL, tokenManager)

		req := &transport.Request{
			Method: "GET",
			Path:   "Patient/p1",
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var result map[string]string

		err = json.Unmarshal(resp.Body, &result)
		require.NoError(t, err)
		assert.Equal(t, "Patient", result["resourceType"])
		assert.Equal(t, "p1", result["id"])
	})

	t.Run("request with query parameters", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/Patient", request.URL.Path)
			assert.Equal(t, "page=2", request.URL.RawQuery)
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, nil)

		req := &transport.Request{
			Method: "GET",
			Path:   "Patient",
			Query:  url.Values{"page": []string{"2"}},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("raw query overrides query", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "patient:Patient.name=John", request.URL.RawQuery)
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, nil)

		req := &transport.Request{
			Method:   "GET",
			Path:     "Observation",
			Query:    url.Values{"ignored": []string{"yes"}},
			RawQuery: "patient:Patient.name=John",
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("request with body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "POST", request.Method)
			assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(request.Body).Decode(&body))
			assert.Equal(t, "Patient", body["resourceType"])

			writer.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, nil)

		resp, err := client.Post(context.Background(), "Patient", map[string]any{"resourceType": "Patient"})
		require.NoError(t, err)
		assert.Equal(t, 201, resp.StatusCode)
	})

	t.Run("custom and extra headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "tenant-1", request.Header.Get("X-Tenant"))
			assert.Equal(t, "custom", request.Header.Get("X-Custom"))
			assert.Equal(t, "test-agent", request.Header.Get("User-Agent"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, nil,
			transport.WithExtraHeaders(map[string]string{"X-Tenant": "tenant-1"}),
			transport.WithUserAgent("test-agent"),
		)

		req := &transport.Request{
			Method:  "GET",
			Path:    "Patient",
			Headers: map[string]string{"X-Custom": "custom"},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("non-2xx returned as response", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(writer).Encode(map[string]string{"resourceType": "OperationOutcome"})
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, nil)

		resp, err := client.Get(context.Background(), "Patient/missing", nil)
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode)
		assert.Contains(t, string(resp.Body), "OperationOutcome")
	})

	t.Run("token manager error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			t.Error("no request expected")
		}))
		defer server.Close()

		tokenManager := &MockTokenManager{err: errors.New("token expired")}
		client := transport.NewClient(server.URL, tokenManager)

		_, err := client.Get(context.Background(), "Patient", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "getting token")
	})

	t.Run("debug logging", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		logger := &MockLogger{}
		client := transport.NewClient(server.URL, nil,
			transport.WithLogger(logger),
			transport.WithDebug(true),
		)

		_, err := client.Get(context.Background(), "Patient", nil)
		require.NoError(t, err)

		require.Len(t, logger.logs, 2)
		assert.Equal(t, "HTTP Request", logger.logs[0]["msg"])
		assert.Equal(t, "HTTP Response", logger.logs[1]["msg"])
	})
}

func TestClient_Retry(t *testing.T) {
	t.Parallel()

	t.Run("retries on server errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int64

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if attempts.Add(1) < 3 {
				writer.WriteHeader(http.StatusBadGateway)

				return
			}

			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, nil,
			transport.WithRetryConfig(3, time.Millisecond, 5*time.Millisecond),
		)

		resp, err := client.Get(context.Background(), "Patient", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.EqualValues(t, 3, attempts.Load())
	})

	t.Run("exhausted retries surface the last response", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int64

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)
			writer.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, nil,
			transport.WithRetryConfig(2, time.Millisecond, 5*time.Millisecond),
		)

		resp, err := client.Get(context.Background(), "Patient", nil)
		require.NoError(t, err)
		assert.Equal(t, 503, resp.StatusCode)
		assert.EqualValues(t, 3, attempts.Load())
	})

	t.Run("no retry on client errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int64

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)
			writer.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, nil,
			transport.WithRetryConfig(3, time.Millisecond, 5*time.Millisecond),
		)

		resp, err := client.Get(context.Background(), "Patient", nil)
		require.NoError(t, err)
		assert.Equal(t, 422, resp.StatusCode)
		assert.EqualValues(t, 1, attempts.Load())
	})
}

func TestClient_BuildURL(t *testing.T) {
	t.Parallel()

	t.Run("rejects absolute urls outside the base", func(t *testing.T) {
		t.Parallel()

		client := transport.NewClient("https://fhir.example.com/R4", nil)

		_, err := client.Get(context.Background(), "https://evil.example.com/Patient", nil)
		require.ErrorIs(t, err, transport.ErrUnsafeURL)
	})

	t.Run("accepts absolute urls under the base", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/Patient/_page/two", request.URL.Path)
			assert.Equal(t, "token=abc", request.URL.RawQuery)
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, nil)

		resp, err := client.Get(context.Background(), server.URL+"/Patient/_page/two?token=abc", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("appends with ampersand when the url already has a query", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "token=abc&_format=json", request.URL.RawQuery)
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, nil)

		req := &transport.Request{
			Method:   "GET",
			Path:     server.URL + "/Patient?token=abc",
			RawQuery: "_format=json",
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("empty path targets the base url", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/", request.URL.Path)
			assert.Equal(t, "POST", request.Method)
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := transport.NewClient(server.URL, nil)

		resp, err := client.Post(context.Background(), "", map[string]any{"resourceType": "Bundle"})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})
}

func TestClient_Methods(t *testing.T) {
	t.Parallel()

	var lastMethod atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		lastMethod.Store(request.Method)
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := transport.NewClient(server.URL, nil)
	ctx := context.Background()

	_, err := client.Put(ctx, "Patient/p1", map[string]any{"resourceType": "Patient"})
	require.NoError(t, err)
	assert.Equal(t, "PUT", lastMethod.Load())

	_, err = client.Patch(ctx, "Patient/p1", map[string]any{"active": true})
	require.NoError(t, err)
	assert.Equal(t, "PATCH", lastMethod.Load())

	_, err = client.Delete(ctx, "Patient/p1")
	require.NoError(t, err)
	assert.Equal(t, "DELETE", lastMethod.Load())
}
