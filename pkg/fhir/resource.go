package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Resource models a remote FHIR resource as a locally-manipulable object: a
// string-keyed field map plus identity. The constructing caller exclusively
// owns the object; the cache only ever holds serialized snapshots of it.
type Resource struct {
	client       *Client
	resourceType string
	fields       map[string]any
}

func newResource(client *Client, resourceType string, fields map[string]any) *Resource {
	copied := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		copied[key] = deepCopyValue(value)
	}

	copied["resourceType"] = resourceType

	return &Resource{
		client:       client,
		resourceType: resourceType,
		fields:       copied,
	}
}

// ResourceType returns the immutable resource type.
func (r *Resource) ResourceType() string {
	return r.resourceType
}

// ID returns the server-assigned id, or "" while the resource is unsaved.
func (r *Resource) ID() string {
	id, _ := r.fields["id"].(string)

	return id
}

// SetID assigns the id field.
func (r *Resource) SetID(id string) {
	r.fields["id"] = id
}

// Reference returns "Type/id" when the resource is persisted, else "".
func (r *Resource) Reference() string {
	if id := r.ID(); id != "" {
		return r.resourceType + "/" + id
	}

	return ""
}

// Set assigns a field. Assigning a different resourceType fails with
// ErrImmutableField; re-assigning the same value is a no-op.
func (r *Resource) Set(key string, value any) error {
	if key == "resourceType" {
		if typed, ok := value.(string); ok && typed == r.resourceType {
			return nil
		}

		return fmt.Errorf("%w: resourceType is fixed to %q, construct a new resource instead",
			ErrImmutableField, r.resourceType)
	}

	r.fields[key] = value

	return nil
}

// Get returns a top-level field value.
func (r *Resource) Get(key string) (any, bool) {
	value, ok := r.fields[key]

	return value, ok
}

// GetString returns a top-level field as a string, or "".
func (r *Resource) GetString(key string) string {
	value, _ := r.fields[key].(string)

	return value
}

// GetByPath walks a dotted path ("name.0.given") through the field map.
func (r *Resource) GetByPath(path string, def any) any {
	return GetByPath(r.fields, ParsePath(path), def)
}

// SetByPath assigns a value at a dotted path. Intermediate containers must
// already exist.
func (r *Resource) SetByPath(path string, value any) error {
	if path == "resourceType" {
		return r.Set(path, value)
	}

	return SetByPath(r.fields, ParsePath(path), value)
}

// Fields exposes the live field map to the owning caller.
func (r *Resource) Fields() map[string]any {
	return r.fields
}

// Equal compares resources solely by their reference string. Resources
// without a reference are never equal to anything.
func (r *Resource) Equal(other *Resource) bool {
	if other == nil {
		return false
	}

	return r.Reference() != "" && r.Reference() == other.Reference()
}

// Serialize deep-copies the field map into a plain JSON-compatible map.
// Embedded *Resource values are collapsed to their references.
func (r *Resource) Serialize() (map[string]any, error) {
	serialized, err := serializeValue(r.fields)
	if err != nil {
		return nil, err
	}

	mapped, ok := serialized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: resource fields are not a map", ErrInvalidResponse)
	}

	return mapped, nil
}

// MarshalJSON implements json.Marshaler.
func (r *Resource) MarshalJSON() ([]byte, error) {
	serialized, err := r.Serialize()
	if err != nil {
		return nil, err
	}

	return json.Marshal(serialized)
}

// Decode projects the field map onto a caller-defined typed struct.
func (r *Resource) Decode(out any) error {
	raw, err := r.MarshalJSON()
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, out)
}

// String implements fmt.Stringer.
func (r *Resource) String() string {
	return fmt.Sprintf("<Resource %s>", r.path())
}

// path is the request path for this resource: "Type/id" when persisted,
// "Type" for type-level operations, "" for Bundle submission.
func (r *Resource) path() string {
	if id := r.ID(); id != "" {
		return r.resourceType + "/" + id
	}

	if r.resourceType == "Bundle" {
		return ""
	}

	return r.resourceType
}

// replaceFields swaps the local field map for the server representation while
// preserving object identity to the caller.
func (r *Resource) replaceFields(data map[string]any) {
	fields := make(map[string]any, len(data)+1)
	for key, value := range data {
		fields[key] = deepCopyValue(value)
	}

	fields["resourceType"] = r.resourceType
	r.fields = fields
}

// Create persists the resource with POST. On success the local field map is
// replaced with the server echo, making id, meta and server-computed fields
// visible.
func (r *Resource) Create(ctx context.Context) error {
	body, err := r.Serialize()
	if err != nil {
		return err
	}

	data, _, err := r.client.execute(ctx, http.MethodPost, r.resourceType, body, nil)
	if err != nil {
		return fmt.Errorf("creating %s: %w", r.resourceType, err)
	}

	return r.absorb(ctx, data)
}

// createIfNoneExist persists the resource with POST guarded by an
// If-None-Exist header carrying the search condition, so the server refuses
// to duplicate a match that appeared concurrently. The bool reports whether a
// create happened: a matched guard returns the existing resource with 200.
func (r *Resource) createIfNoneExist(ctx context.Context, condition Params) (bool, error) {
	body, err := r.Serialize()
	if err != nil {
		return false, err
	}

	data, status, err := r.client.executeHeaders(ctx, http.MethodPost, r.resourceType, body, nil,
		map[string]string{"If-None-Exist": EncodeParams(condition)})
	if err != nil {
		return false, fmt.Errorf("creating %s: %w", r.resourceType, err)
	}

	if err := r.absorb(ctx, data); err != nil {
		return false, err
	}

	return status == http.StatusCreated, nil
}

// Update replaces the full server representation with PUT. Requires an id.
func (r *Resource) Update(ctx context.Context) error {
	if r.ID() == "" {
		return fmt.Errorf("%w for update", ErrMissingID)
	}

	return r.Save(ctx)
}

// Save persists the resource: with field names given, PATCHes only those
// fields (requires an id); otherwise creates or updates based on id presence.
func (r *Resource) Save(ctx context.Context, fields ...string) error {
	body, err := r.Serialize()
	if err != nil {
		return err
	}

	method := http.MethodPost
	if r.ID() != "" {
		method = http.MethodPut
	}

	if len(fields) > 0 {
		if r.ID() == "" {
			return fmt.Errorf("%w for partial save", ErrMissingID)
		}

		method = http.MethodPatch

		partial := make(map[string]any, len(fields))
		for _, field := range fields {
			value, ok := body[field]
			if !ok {
				return fmt.Errorf("%w: field %q is not set on the resource", ErrArgument, field)
			}

			partial[field] = value
		}

		body = partial
	}

	data, _, err := r.client.execute(ctx, method, r.path(), body, nil)
	if err != nil {
		return fmt.Errorf("saving %s: %w", r.resourceType, err)
	}

	return r.absorb(ctx, data)
}

// Patch shallow-merges the given fields locally, then performs a partial
// update of just those fields. Requires an id.
func (r *Resource) Patch(ctx context.Context, partial map[string]any) error {
	if r.ID() == "" {
		return fmt.Errorf("%w for patch", ErrMissingID)
	}

	fields := make([]string, 0, len(partial))
	for key, value := range partial {
		r.fields[key] = value
		fields = append(fields, key)
	}

	return r.Save(ctx, fields...)
}

// Refresh replaces the local field map with the current server state,
// discarding any unsaved local edits.
func (r *Resource) Refresh(ctx context.Context) error {
	data, _, err := r.client.execute(ctx, http.MethodGet, r.path(), nil, nil)
	if err != nil {
		return fmt.Errorf("refreshing %s: %w", r.path(), err)
	}

	return r.absorb(ctx, data)
}

// Delete removes the resource on the server and invalidates its cache entry.
// Requires an id.
func (r *Resource) Delete(ctx context.Context) error {
	if r.ID() == "" {
		return fmt.Errorf("%w for delete", ErrMissingID)
	}

	_, _, err := r.client.execute(ctx, http.MethodDelete, r.path(), nil, nil)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", r.path(), err)
	}

	r.client.cacheDelete(ctx, r.Reference())

	return nil
}

// ToReference returns a Reference pointing at this resource, optionally with
// a human-readable display. Fails with ErrResourceNotFound while the resource
// is unsaved.
func (r *Resource) ToReference(display ...string) (*Reference, error) {
	if r.Reference() == "" {
		return nil, fmt.Errorf("%w: can not reference an unsaved resource", ErrResourceNotFound)
	}

	reference := r.client.Reference(r.resourceType, r.ID())
	if len(display) > 0 {
		reference.display = display[0]
	}

	return reference, nil
}

// Validate runs Type/$validate. A nil error means the server reported no
// fatal or error issues; otherwise the OperationOutcomeError carries them.
func (r *Resource) Validate(ctx context.Context) error {
	body, err := r.Serialize()
	if err != nil {
		return err
	}

	data, _, err := r.client.execute(ctx, http.MethodPost, r.resourceType+"/$validate", body, nil)
	if err != nil {
		return err
	}

	var outcome operationOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return fmt.Errorf("%w: parsing validation outcome: %v", ErrInvalidResponse, err)
	}

	failure := &OperationOutcomeError{StatusCode: http.StatusOK, Issues: outcome.Issue}
	if failure.HasErrors() {
		return failure
	}

	return nil
}

// Execute runs an instance-level $operation, e.g. "$everything".
func (r *Resource) Execute(ctx context.Context, operation, method string, body any, params Params) (json.RawMessage, error) {
	data, _, err := r.client.execute(ctx, method, r.path()+"/"+operation, body, params)

	return data, err
}

// absorb replaces local state with the server representation and refreshes
// the cache entry.
func (r *Resource) absorb(ctx context.Context, data json.RawMessage) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: parsing %s response: %v", ErrInvalidResponse, r.resourceType, err)
	}

	r.replaceFields(fields)
	r.client.cacheSet(ctx, r)

	return nil
}

// deepCopyValue copies nested maps and lists so derived objects never alias
// caller state.
func deepCopyValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		copied := make(map[string]any, len(typed))
		for key, item := range typed {
			copied[key] = deepCopyValue(item)
		}

		return copied
	case []any:
		copied := make([]any, len(typed))
		for i, item := range typed {
			copied[i] = deepCopyValue(item)
		}

		return copied
	default:
		return value
	}
}

// serializeValue deep-copies while collapsing embedded Resource and Reference
// values to reference shapes.
func serializeValue(value any) (any, error) {
	switch typed := value.(type) {
	case *Resource:
		if typed.Reference() == "" {
			return nil, fmt.Errorf("%w: can not serialize an embedded unsaved resource", ErrResourceNotFound)
		}

		return map[string]any{"reference": typed.Reference()}, nil
	case *Reference:
		return typed.serialize(), nil
	case map[string]any:
		copied := make(map[string]any, len(typed))

		for key, item := range typed {
			converted, err := serializeValue(item)
			if err != nil {
				return nil, err
			}

			copied[key] = converted
		}

		return copied, nil
	case []any:
		copied := make([]any, len(typed))

		for i, item := range typed {
			converted, err := serializeValue(item)
			if err != nil {
				return nil, err
			}

			copied[i] = converted
		}

		return copied, nil
	default:
		return value, nil
	}
}
