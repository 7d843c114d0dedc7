package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// SearchSet is an immutable query descriptor over one resource type. Every
// builder method returns a new SearchSet built on a deep copy of the
// parameter multimap, so two sets derived from a common ancestor never alias
// state. Execution methods never mutate the receiver.
//
// Builder argument errors are deferred: they surface from the next execution
// method, keeping chains fluent.
type SearchSet struct {
	client       *Client
	resourceType string
	params       Params
	err          error
}

// ResourceType returns the declared resource type of the set.
func (s *SearchSet) ResourceType() string {
	return s.resourceType
}

// Params returns a copy of the accumulated search parameters.
func (s *SearchSet) Params() Params {
	return s.params.Clone()
}

// Err returns the deferred builder error, if any.
func (s *SearchSet) Err() error {
	return s.err
}

// String implements fmt.Stringer.
func (s *SearchSet) String() string {
	return fmt.Sprintf("<SearchSet %s?%s>", s.resourceType, EncodeParams(s.params))
}

// clone derives a new SearchSet applying updates with append or override
// semantics.
func (s *SearchSet) clone(override bool, updates Params) *SearchSet {
	params := s.params.Clone()

	for key, values := range updates {
		if override {
			params.Set(key, values...)
		} else {
			params.Add(key, values...)
		}
	}

	return &SearchSet{
		client:       s.client,
		resourceType: s.resourceType,
		params:       params,
		err:          s.err,
	}
}

// fail derives a SearchSet carrying a deferred argument error.
func (s *SearchSet) fail(err error) *SearchSet {
	derived := s.clone(false, nil)
	if derived.err == nil {
		derived.err = err
	}

	return derived
}

// Search merges filter expressions (see SQ) into the set with append
// semantics.
func (s *SearchSet) Search(args ...any) *SearchSet {
	params, err := SQ(args...)
	if err != nil {
		return s.fail(err)
	}

	return s.clone(false, params)
}

// SearchParams merges a pre-built parameter multimap with append semantics.
func (s *SearchSet) SearchParams(params Params) *SearchSet {
	return s.clone(false, params)
}

// Sort replaces the sort order (`_sort`).
func (s *SearchSet) Sort(keys ...string) *SearchSet {
	return s.clone(true, Params{"_sort": {strings.Join(keys, ",")}})
}

// Limit replaces the page size (`_count`).
func (s *SearchSet) Limit(limit int) *SearchSet {
	return s.clone(true, Params{"_count": {strconv.Itoa(limit)}})
}

// Page replaces the page number (`page`).
func (s *SearchSet) Page(page int) *SearchSet {
	return s.clone(true, Params{"page": {strconv.Itoa(page)}})
}

// Elements restricts returned fields (`_elements`). id and resourceType are
// always included.
func (s *SearchSet) Elements(fields ...string) *SearchSet {
	selected := uniqueEverseen(append([]string{"id", "resourceType"}, fields...))

	return s.clone(true, Params{"_elements": {strings.Join(selected, ",")}})
}

// ElementsExclude excludes the given fields (`_elements=-...`).
func (s *SearchSet) ElementsExclude(fields ...string) *SearchSet {
	return s.clone(true, Params{"_elements": {"-" + strings.Join(uniqueEverseen(fields), ",")}})
}

// includeOptions configures Include and Revinclude.
type includeOptions struct {
	target    string
	recursive bool
	iterate   bool
}

// IncludeOption adjusts _include/_revinclude construction.
type IncludeOption func(*includeOptions)

// IncludeTarget restricts the include to a target resource type.
func IncludeTarget(resourceType string) IncludeOption {
	return func(o *includeOptions) {
		o.target = resourceType
	}
}

// IncludeRecursive adds the :recursive qualifier.
func IncludeRecursive() IncludeOption {
	return func(o *includeOptions) {
		o.recursive = true
	}
}

// IncludeIterate adds the :iterate qualifier.
func IncludeIterate() IncludeOption {
	return func(o *includeOptions) {
		o.iterate = true
	}
}

func (s *SearchSet) include(reverse bool, resourceType, searchParam string, opts ...IncludeOption) *SearchSet {
	options := includeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	key := "_include"
	if reverse {
		key = "_revinclude"
	}

	if options.iterate {
		key += ":iterate"
	}

	if options.recursive {
		key += ":recursive"
	}

	value := "*"
	if resourceType != "*" {
		if searchParam == "" {
			return s.fail(fmt.Errorf("%w: include of %q requires a search parameter", ErrArgument, resourceType))
		}

		value = resourceType + ":" + searchParam
		if options.target != "" {
			value += ":" + options.target
		}
	}

	return s.clone(false, Params{key: {value}})
}

// Include side-loads referenced resources (`_include=Type:param[:target]`).
// The wildcard "*" bypasses the search-parameter requirement.
func (s *SearchSet) Include(resourceType, searchParam string, opts ...IncludeOption) *SearchSet {
	return s.include(false, resourceType, searchParam, opts...)
}

// Revinclude side-loads referring resources (`_revinclude=...`).
func (s *SearchSet) Revinclude(resourceType, searchParam string, opts ...IncludeOption) *SearchSet {
	return s.include(true, resourceType, searchParam, opts...)
}

// Has filters by properties of referring resources
// (`_has:Type:param:filter=value`). filterArgs follow the SQ convention.
func (s *SearchSet) Has(resourceType, searchParam string, filterArgs ...any) *SearchSet {
	return s.HasChain([]string{resourceType, searchParam}, filterArgs...)
}

// HasChain builds a nested reverse-chained filter from type/param pairs:
//
//	HasChain([]string{"Observation", "patient", "AuditEvent", "entity"}, "user", "id")
func (s *SearchSet) HasChain(typeParamPairs []string, filterArgs ...any) *SearchSet {
	if len(typeParamPairs) == 0 || len(typeParamPairs)%2 != 0 {
		return s.fail(fmt.Errorf(
			"%w: _has requires an even number of type/parameter arguments", ErrArgument))
	}

	segments := make([]string, 0, len(typeParamPairs)/2)
	for i := 0; i < len(typeParamPairs); i += 2 {
		segments = append(segments, "_has:"+typeParamPairs[i]+":"+typeParamPairs[i+1])
	}

	prefix := strings.Join(segments, ":")

	filter, err := SQ(filterArgs...)
	if err != nil {
		return s.fail(err)
	}

	updates := NewParams()
	for key, values := range filter {
		updates.Add(prefix+":"+key, values...)
	}

	return s.clone(false, updates)
}

// fetchBundle executes one search request and validates the envelope.
func (s *SearchSet) fetchBundle(ctx context.Context, path string, params Params) (*Bundle, error) {
	data, _, err := s.client.execute(ctx, http.MethodGet, path, nil, params)
	if err != nil {
		return nil, err
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: parsing search response: %v", ErrInvalidResponse, err)
	}

	if bundle.ResourceType != "Bundle" {
		return nil, fmt.Errorf("%w: expected Bundle, got %q", ErrInvalidResponse, bundle.ResourceType)
	}

	return &bundle, nil
}

// materialize turns bundle entries into Resources, keeping only entries of
// the declared type: servers may side-load _include'd resources that must not
// leak into the primary result set.
func (s *SearchSet) materialize(ctx context.Context, bundle *Bundle) ([]*Resource, error) {
	resources := make([]*Resource, 0, len(bundle.Entry))

	for _, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			continue
		}

		resource, err := s.client.materializeResource(ctx, entry.Resource)
		if err != nil {
			return nil, err
		}

		if resource.ResourceType() == s.resourceType {
			resources = append(resources, resource)
		}
	}

	return resources, nil
}

// Fetch executes exactly one page of the query.
func (s *SearchSet) Fetch(ctx context.Context) ([]*Resource, error) {
	if s.err != nil {
		return nil, s.err
	}

	bundle, err := s.fetchBundle(ctx, s.resourceType, s.params)
	if err != nil {
		return nil, err
	}

	return s.materialize(ctx, bundle)
}

// FetchRaw executes one page and returns the raw Bundle body as a generic
// map, leaving side-loaded entries in place.
func (s *SearchSet) FetchRaw(ctx context.Context) (map[string]any, error) {
	if s.err != nil {
		return nil, s.err
	}

	data, _, err := s.client.execute(ctx, http.MethodGet, s.resourceType, nil, s.params)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing search response: %v", ErrInvalidResponse, err)
	}

	return raw, nil
}

// Count executes a count-only query and returns the server total.
func (s *SearchSet) Count(ctx context.Context) (int, error) {
	if s.err != nil {
		return 0, s.err
	}

	params := s.params.Clone()
	params.Set("_count", "0")
	params.Set("_totalMethod", "count")

	bundle, err := s.fetchBundle(ctx, s.resourceType, params)
	if err != nil {
		return 0, err
	}

	if bundle.Total == nil {
		return 0, fmt.Errorf("%w: count response carries no total", ErrInvalidResponse)
	}

	return *bundle.Total, nil
}

// First returns the first match, or nil without error when there is none.
func (s *SearchSet) First(ctx context.Context) (*Resource, error) {
	resources, err := s.Limit(1).Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if len(resources) == 0 {
		return nil, nil
	}

	return resources[0], nil
}

// Get requires the filter to select exactly one resource: zero matches fail
// with ErrResourceNotFound, two or more with ErrMultipleResourcesFound.
func (s *SearchSet) Get(ctx context.Context) (*Resource, error) {
	resources, err := s.Limit(2).Fetch(ctx)
	if err != nil {
		return nil, err
	}

	switch len(resources) {
	case 0:
		return nil, fmt.Errorf("%w: no %s matches the filter", ErrResourceNotFound, s.resourceType)
	case 1:
		return resources[0], nil
	default:
		return nil, fmt.Errorf("%w: more than one %s matches the filter", ErrMultipleResourcesFound, s.resourceType)
	}
}

// GetOrCreate returns the single existing match, or persists candidate when
// there is none. The bool reports whether a create happened.
func (s *SearchSet) GetOrCreate(ctx context.Context, candidate *Resource) (*Resource, bool, error) {
	if err := s.checkCandidate(candidate); err != nil {
		return nil, false, err
	}

	existing, err := s.matchOne(ctx)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		return existing, false, nil
	}

	created, err := candidate.createIfNoneExist(ctx, s.params)
	if err != nil {
		return nil, false, err
	}

	return candidate, created, nil
}

// Update is the conditional form: with exactly one match the candidate
// replaces it (PUT); with none the candidate is created with the filter as an
// If-None-Exist guard against concurrent writers. The bool reports whether a
// create happened.
func (s *SearchSet) Update(ctx context.Context, candidate *Resource) (*Resource, bool, error) {
	if err := s.checkCandidate(candidate); err != nil {
		return nil, false, err
	}

	existing, err := s.matchOne(ctx)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		created, err := candidate.createIfNoneExist(ctx, s.params)
		if err != nil {
			return nil, false, err
		}

		return candidate, created, nil
	}

	candidate.SetID(existing.ID())
	if err := candidate.Update(ctx); err != nil {
		return nil, false, err
	}

	return candidate, false, nil
}

// Patch is the conditional form: it partially updates the single match. A
// patch can never create, so zero matches fail with ErrResourceNotFound.
func (s *SearchSet) Patch(ctx context.Context, partial map[string]any) (*Resource, error) {
	existing, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	return s.client.Patch(ctx, existing.Reference(), partial)
}

// Delete performs a conditional delete with the filter as query. The server
// reports 204 for zero matches and 200 for exactly one; more than one match
// surfaces through the transport as ErrMultipleResourcesFound.
func (s *SearchSet) Delete(ctx context.Context) (json.RawMessage, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}

	return s.client.execute(ctx, http.MethodDelete, s.resourceType, nil, s.params)
}

// Execute runs a type-level $operation, e.g. "$export".
func (s *SearchSet) Execute(ctx context.Context, operation, method string, body any, params Params) (json.RawMessage, error) {
	if s.err != nil {
		return nil, s.err
	}

	data, _, err := s.client.execute(ctx, method, s.resourceType+"/"+operation, body, params)

	return data, err
}

// matchOne runs the zero/one/many disambiguation, returning nil for zero.
func (s *SearchSet) matchOne(ctx context.Context) (*Resource, error) {
	resources, err := s.Limit(2).Fetch(ctx)
	if err != nil {
		return nil, err
	}

	switch len(resources) {
	case 0:
		return nil, nil
	case 1:
		return resources[0], nil
	default:
		return nil, fmt.Errorf("%w: more than one %s matches the filter", ErrMultipleResourcesFound, s.resourceType)
	}
}

func (s *SearchSet) checkCandidate(candidate *Resource) error {
	if s.err != nil {
		return s.err
	}

	if candidate == nil {
		return fmt.Errorf("%w: candidate resource is required", ErrArgument)
	}

	if candidate.ResourceType() != s.resourceType {
		return fmt.Errorf("%w: candidate is a %s, search set is over %s",
			ErrArgument, candidate.ResourceType(), s.resourceType)
	}

	return nil
}
