package fhir

import "encoding/json"

// Bundle is the wire-level envelope wrapping a page of search results or a
// batch/transaction submission.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
}

// BundleEntry is a single search match or batch/transaction item.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
	Response *BundleResponse `json:"response,omitempty"`
}

// BundleRequest describes the operation for a batch/transaction entry.
type BundleRequest struct {
	Method      string `json:"method"`
	URL         string `json:"url"`
	IfNoneExist string `json:"ifNoneExist,omitempty"`
}

// BundleResponse is the per-entry outcome of a batch/transaction submission.
type BundleResponse struct {
	Status   string          `json:"status"`
	Location string          `json:"location,omitempty"`
	Outcome  json.RawMessage `json:"outcome,omitempty"`
}

// BundleLink relates a pagination url to the current page.
type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// NextLink returns the url of the link with relation "next", or "".
func (b *Bundle) NextLink() string {
	for _, link := range b.Link {
		if link.Relation == "next" {
			return link.URL
		}
	}

	return ""
}

// operationOutcome mirrors the OperationOutcome wire shape for error parsing.
type operationOutcome struct {
	ResourceType string  `json:"resourceType"`
	Issue        []Issue `json:"issue"`
}
