package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Reference is a pointer to a resource. A local reference carries a
// resolvable "Type/id" pair; anything else (absolute urls, non-standard
// paths) is external and can never be resolved. A Reference never owns a
// Resource: resolving returns a fresh snapshot.
type Reference struct {
	client    *Client
	reference string
	display   string
}

// resolveOptions configures reference resolution.
type resolveOptions struct {
	noCache bool
}

// ResolveOption adjusts how ToResource materializes the target.
type ResolveOption func(*resolveOptions)

// WithoutCache forces resolution to bypass the client cache.
func WithoutCache() ResolveOption {
	return func(o *resolveOptions) {
		o.noCache = true
	}
}

// Reference returns the raw reference string.
func (r *Reference) Reference() string {
	return r.reference
}

// Display returns the human-readable label, if any.
func (r *Reference) Display() string {
	return r.display
}

// IsLocal reports whether the reference is a "Type/id" pair resolvable
// against the same server. Exactly one "/" is required.
func (r *Reference) IsLocal() bool {
	return strings.Count(r.reference, "/") == 1
}

// ResourceType returns the target type for a local reference, else "".
func (r *Reference) ResourceType() string {
	if !r.IsLocal() {
		return ""
	}

	resourceType, _, _ := strings.Cut(r.reference, "/")

	return resourceType
}

// ID returns the target id for a local reference, else "".
func (r *Reference) ID() string {
	if !r.IsLocal() {
		return ""
	}

	_, id, _ := strings.Cut(r.reference, "/")

	return id
}

// ToResource resolves the reference into a new Resource snapshot, consulting
// the client cache first unless WithoutCache is passed or caching is
// disabled. External references always fail with ErrResourceNotFound.
func (r *Reference) ToResource(ctx context.Context, opts ...ResolveOption) (*Resource, error) {
	if !r.IsLocal() {
		return nil, fmt.Errorf("%w: can not resolve a non-local reference %q", ErrResourceNotFound, r.reference)
	}

	options := resolveOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if !options.noCache {
		if cached, ok := r.client.cacheGet(ctx, r.reference); ok {
			return cached, nil
		}
	}

	return r.client.Resources(r.ResourceType()).Search("_id", r.ID()).Get(ctx)
}

// Patch performs a partial update of the target and returns the updated
// snapshot.
func (r *Reference) Patch(ctx context.Context, partial map[string]any) (*Resource, error) {
	if !r.IsLocal() {
		return nil, fmt.Errorf("%w: can not patch a non-local reference %q", ErrResourceNotFound, r.reference)
	}

	return r.client.Patch(ctx, r.reference, partial)
}

// Delete removes the target resource.
func (r *Reference) Delete(ctx context.Context) error {
	if !r.IsLocal() {
		return fmt.Errorf("%w: can not delete a non-local reference %q", ErrResourceNotFound, r.reference)
	}

	return r.client.Delete(ctx, r.reference)
}

// Execute runs an instance-level $operation on the target.
func (r *Reference) Execute(ctx context.Context, operation, method string, body any, params Params) (json.RawMessage, error) {
	if !r.IsLocal() {
		return nil, fmt.Errorf("%w: can not execute on a non-local reference %q", ErrResourceNotFound, r.reference)
	}

	data, _, err := r.client.execute(ctx, method, r.reference+"/"+operation, body, params)

	return data, err
}

// serialize renders the wire shape of the reference.
func (r *Reference) serialize() map[string]any {
	serialized := map[string]any{"reference": r.reference}
	if r.display != "" {
		serialized["display"] = r.display
	}

	return serialized
}

// MarshalJSON implements json.Marshaler.
func (r *Reference) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.serialize())
}

// String implements fmt.Stringer.
func (r *Reference) String() string {
	return fmt.Sprintf("<Reference %s>", r.reference)
}

// isReferenceShape reports whether a raw map is a plain reference value.
func isReferenceShape(value map[string]any) bool {
	if _, ok := value["reference"].(string); !ok {
		return false
	}

	for key := range value {
		if key != "reference" && key != "display" {
			return false
		}
	}

	return true
}
