package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Logger is the structured logging interface used by the client and the
// transport.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// ExecuteRequest describes one HTTP exchange for the transport adapter.
type ExecuteRequest struct {
	Method  string
	Path    string
	Body    any
	Params  Params
	Headers map[string]string
}

// Executor is the transport adapter contract: it performs one HTTP exchange
// and returns the parsed body with the status code, or a typed failure:
// ErrResourceNotFound for 404/410, ErrMultipleResourcesFound for 412,
// ErrAuthorization for 401/403, and *OperationOutcomeError for other
// non-2xx responses. Paths are relative to the configured base url; absolute
// urls are accepted only when prefixed by that base url (ErrUnsafeURL
// otherwise).
type Executor interface {
	Execute(ctx context.Context, req *ExecuteRequest) (json.RawMessage, int, error)
}

// Config carries client configuration.
type Config struct {
	// BaseURL of the FHIR server, e.g. "https://fhir.example.com/R4".
	BaseURL string

	// Authorization is sent verbatim in the Authorization header
	// (e.g. "Bearer ey...").
	Authorization string

	// Username/Password select HTTP basic auth when Authorization is empty.
	Username string
	Password string

	// ExtraHeaders are added to every request.
	ExtraHeaders map[string]string

	// Cache configures resolution caching; nil disables it.
	Cache *CacheConfig

	// CacheTTL bounds the lifetime of cached snapshots; 0 means no expiry.
	CacheTTL time.Duration

	// Retry tuning for the transport (transient failures only).
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// HTTPTimeout is the per-attempt timeout; rely on context for overall
	// deadlines.
	HTTPTimeout time.Duration

	// Logger enables structured request logging.
	Logger Logger

	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

// Client is the entry point of the library. It owns its cache instance and
// carries no process-wide state: construct one Client per server and share it
// freely, SearchSets and the cache are safe for concurrent use.
type Client struct {
	executor Executor
	cache    Cache
	cacheTTL time.Duration
	logger   Logger
	baseURL  string
}

// NewClient builds a Client over an already-wired transport adapter.
// Most callers should use fhirclient.New instead.
func NewClient(config *Config, executor Executor) (*Client, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}

	if executor == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrArgument)
	}

	var cache Cache
	if config.Cache != nil {
		built, err := NewCacheFromConfig(config.Cache)
		if err != nil {
			return nil, fmt.Errorf("building cache: %w", err)
		}

		cache = built
	}

	return &Client{
		executor: executor,
		cache:    cache,
		cacheTTL: config.CacheTTL,
		logger:   config.Logger,
		baseURL:  strings.TrimSuffix(config.BaseURL, "/"),
	}, nil
}

// BaseURL returns the configured server base url.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// String implements fmt.Stringer.
func (c *Client) String() string {
	return fmt.Sprintf("<Client %s>", c.baseURL)
}

// Resource constructs a new in-memory resource of the given type. It is
// unsaved until Create/Save persists it.
func (c *Client) Resource(resourceType string, fields map[string]any) *Resource {
	return newResource(c, resourceType, fields)
}

// ResourceFromStruct projects a caller-defined struct onto a new resource.
// The struct only needs JSON tags matching the wire shape; no schema is
// enforced.
func (c *Client) ResourceFromStruct(resourceType string, value any) (*Resource, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling %s struct: %v", ErrArgument, resourceType, err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %s struct is not an object: %v", ErrArgument, resourceType, err)
	}

	return newResource(c, resourceType, fields), nil
}

// Reference constructs a local reference from a type and id.
func (c *Client) Reference(resourceType, id string) *Reference {
	return &Reference{client: c, reference: resourceType + "/" + id}
}

// ReferenceTo returns a reference pointing at a persisted resource.
func (c *Client) ReferenceTo(resource *Resource) (*Reference, error) {
	return resource.ToReference()
}

// ParseReference wraps a raw reference string, local or external.
func (c *Client) ParseReference(reference string) *Reference {
	return &Reference{client: c, reference: reference}
}

// Resources starts a search set over the given resource type.
func (c *Client) Resources(resourceType string) *SearchSet {
	return &SearchSet{
		client:       c,
		resourceType: resourceType,
		params:       NewParams(),
	}
}

// Get fetches a resource by its "Type/id" reference.
func (c *Client) Get(ctx context.Context, reference string) (*Resource, error) {
	resourceType, _, found := strings.Cut(reference, "/")
	if !found {
		return nil, fmt.Errorf("%w: expected a Type/id reference, got %q", ErrArgument, reference)
	}

	data, _, err := c.execute(ctx, http.MethodGet, reference, nil, nil)
	if err != nil {
		return nil, err
	}

	resource, err := c.materializeResource(ctx, data)
	if err != nil {
		return nil, err
	}

	if resource.ResourceType() != resourceType {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidResponse, resourceType, resource.ResourceType())
	}

	return resource, nil
}

// Create persists an unsaved resource.
func (c *Client) Create(ctx context.Context, resource *Resource) error {
	return resource.Create(ctx)
}

// Save creates or updates the resource based on id presence; with field
// names given it patches only those fields.
func (c *Client) Save(ctx context.Context, resource *Resource, fields ...string) error {
	return resource.Save(ctx, fields...)
}

// Update replaces a persisted resource.
func (c *Client) Update(ctx context.Context, resource *Resource) error {
	return resource.Update(ctx)
}

// Patch partially updates the resource at a "Type/id" reference and returns
// the updated snapshot.
func (c *Client) Patch(ctx context.Context, reference string, partial map[string]any) (*Resource, error) {
	if _, _, found := strings.Cut(reference, "/"); !found {
		return nil, fmt.Errorf("%w for patch", ErrMissingID)
	}

	serialized, err := serializeValue(partial)
	if err != nil {
		return nil, err
	}

	data, _, err := c.execute(ctx, http.MethodPatch, reference, serialized, nil)
	if err != nil {
		return nil, fmt.Errorf("patching %s: %w", reference, err)
	}

	return c.materializeResource(ctx, data)
}

// Delete removes the resource at a "Type/id" reference and invalidates its
// cache entry.
func (c *Client) Delete(ctx context.Context, reference string) error {
	if _, _, found := strings.Cut(reference, "/"); !found {
		return fmt.Errorf("%w for delete", ErrMissingID)
	}

	_, _, err := c.execute(ctx, http.MethodDelete, reference, nil, nil)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", reference, err)
	}

	c.cacheDelete(ctx, reference)

	return nil
}

// Execute is the escape hatch for arbitrary paths and $operations.
func (c *Client) Execute(ctx context.Context, method, path string, body any, params Params) (json.RawMessage, error) {
	data, _, err := c.execute(ctx, method, path, body, params)

	return data, err
}

// ClearCache drops cached resource snapshots: every entry when called with no
// arguments, otherwise only entries of the named resource types.
func (c *Client) ClearCache(ctx context.Context, resourceTypes ...string) error {
	if c.cache == nil {
		return nil
	}

	if len(resourceTypes) == 0 {
		return c.cache.Clear(ctx)
	}

	keys, err := c.cache.Keys(ctx)
	if err != nil {
		return fmt.Errorf("listing cache keys: %w", err)
	}

	for _, key := range keys {
		for _, resourceType := range resourceTypes {
			if strings.HasPrefix(key, resourceType+"/") {
				if err := c.cache.Delete(ctx, key); err != nil {
					return fmt.Errorf("clearing %s: %w", key, err)
				}

				break
			}
		}
	}

	return nil
}

// execute delegates one exchange to the transport adapter.
func (c *Client) execute(ctx context.Context, method, path string, body any, params Params) (json.RawMessage, int, error) {
	return c.executeHeaders(ctx, method, path, body, params, nil)
}

// executeHeaders is execute with per-request headers.
func (c *Client) executeHeaders(
	ctx context.Context, method, path string, body any, params Params, headers map[string]string,
) (json.RawMessage, int, error) {
	return c.executor.Execute(ctx, &ExecuteRequest{
		Method:  method,
		Path:    path,
		Body:    body,
		Params:  params,
		Headers: headers,
	})
}

// materializeResource constructs a Resource from a raw server body and
// refreshes its cache entry.
func (c *Client) materializeResource(ctx context.Context, data json.RawMessage) (*Resource, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: parsing resource body: %v", ErrInvalidResponse, err)
	}

	resourceType, _ := fields["resourceType"].(string)
	if resourceType == "" {
		return nil, fmt.Errorf("%w: resource body carries no resourceType", ErrInvalidResponse)
	}

	resource := newResource(c, resourceType, fields)
	c.cacheSet(ctx, resource)

	return resource, nil
}

// cacheGet reads a resolution snapshot; a miss of any kind is just a miss.
func (c *Client) cacheGet(ctx context.Context, reference string) (*Resource, bool) {
	if c.cache == nil {
		return nil, false
	}

	entry, err := c.cache.Get(ctx, reference)
	if err != nil {
		return nil, false
	}

	var fields map[string]any
	if err := json.Unmarshal(entry.Data, &fields); err != nil {
		return nil, false
	}

	resourceType, _ := fields["resourceType"].(string)
	if resourceType == "" {
		return nil, false
	}

	return newResource(c, resourceType, fields), true
}

// cacheSet overwrites the snapshot for a persisted resource. Cache failures
// never fail the operation that triggered them.
func (c *Client) cacheSet(ctx context.Context, resource *Resource) {
	if c.cache == nil || resource.Reference() == "" {
		return
	}

	data, err := resource.MarshalJSON()
	if err != nil {
		return
	}

	entry := &CacheEntry{Data: data}
	if c.cacheTTL > 0 {
		entry.ExpiresAt = time.Now().Add(c.cacheTTL)
	}

	if err := c.cache.Set(ctx, resource.Reference(), entry); err != nil && c.logger != nil {
		c.logger.Warn("cache set failed", map[string]interface{}{
			"reference": resource.Reference(),
			"error":     err.Error(),
		})
	}
}

// cacheDelete invalidates the snapshot for a deleted resource.
func (c *Client) cacheDelete(ctx context.Context, reference string) {
	if c.cache == nil || reference == "" {
		return
	}

	if err := c.cache.Delete(ctx, reference); err != nil && c.logger != nil {
		c.logger.Warn("cache delete failed", map[string]interface{}{
			"reference": reference,
			"error":     err.Error(),
		})
	}
}
