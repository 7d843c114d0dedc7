package fhir

import (
	"context"
	"iter"
	"strconv"
)

// Iter lazily walks every page of the query, yielding resources in order.
// Pages are requested one at a time: the server's link[relation=next] url is
// followed when present; otherwise the `page` parameter is incremented from 1
// until a page shorter than the requested _count (or an empty page) marks the
// end. Stopping consumption stops requesting further pages; a page is never
// yielded twice.
func (s *SearchSet) Iter(ctx context.Context) iter.Seq2[*Resource, error] {
	return func(yield func(*Resource, error) bool) {
		if s.err != nil {
			yield(nil, s.err)

			return
		}

		pageSize := 0
		if counts, ok := s.params["_count"]; ok && len(counts) > 0 {
			pageSize, _ = strconv.Atoi(counts[len(counts)-1])
		}

		path := s.resourceType
		params := s.params.Clone()

		// Continue from the caller's page when one was set.
		pageNum := 1
		if pages, ok := s.params["page"]; ok && len(pages) > 0 {
			if n, err := strconv.Atoi(pages[len(pages)-1]); err == nil && n > 0 {
				pageNum = n
			}
		}

		linkDriven := false

		for {
			bundle, err := s.fetchBundle(ctx, path, params)
			if err != nil {
				yield(nil, err)

				return
			}

			resources, err := s.materialize(ctx, bundle)
			if err != nil {
				yield(nil, err)

				return
			}

			for _, resource := range resources {
				if !yield(resource, nil) {
					return
				}
			}

			if next := bundle.NextLink(); next != "" {
				linkDriven = true

				path, params, err = parsePaginationURL(next)
				if err != nil {
					yield(nil, err)

					return
				}

				continue
			}

			if linkDriven || len(bundle.Entry) == 0 {
				return
			}

			// A short page can only be the last one.
			if pageSize > 0 && len(bundle.Entry) < pageSize {
				return
			}

			pageNum++
			path = s.resourceType
			params = s.params.Clone()
			params.Set("page", strconv.Itoa(pageNum))
		}
	}
}

// FetchAll collects every page of the query into one slice.
func (s *SearchSet) FetchAll(ctx context.Context) ([]*Resource, error) {
	var resources []*Resource

	for resource, err := range s.Iter(ctx) {
		if err != nil {
			return nil, err
		}

		resources = append(resources, resource)
	}

	return resources, nil
}
