// Package fhir provides types and helpers for working with FHIR REST servers
// through schemaless resources.
//
// # Overview
//
// The fhir package defines the domain types (Resource, Reference, SearchSet,
// Bundle) and the Client they hang off. Resources are dynamic field maps
// rather than generated structs: any resource type a server offers can be
// read, searched, created, and updated without code generation. A concrete
// transport is wired by the fhirclient package, which layers configuration,
// HTTP, authentication, and caching; most consumers should import fhirclient
// to construct a client.
//
// Getting a client
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/beda-software/fhir-py/pkg/fhir"
//	  "github.com/beda-software/fhir-py/pkg/fhirclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  cli, err := fhirclient.New(&fhir.Config{BaseURL: "https://fhir.example.com/R4"})
//	  if err != nil { log.Fatal(err) }
//
//	  patient, err := cli.Resources("Patient").
//	    Search("name", "John").
//	    Limit(10).
//	    First(ctx)
//	  if err != nil { log.Fatal(err) }
//	  _ = patient
//	}
//
// # Searching
//
// SearchSet is an immutable builder: every Search, Sort, Limit, Include, or
// Has call returns a new set, so partially built queries can be shared and
// extended without interference. Search accepts raw parameter pairs or the
// condensed filter syntax described on SQ, which renders prefixes, modifiers,
// and chained parameters from double-underscore-separated keys:
//
//	cli.Resources("Patient").Search("birth_date__ge", "1990").Fetch(ctx)
//
// Results come back a page at a time via Fetch, across all pages via FetchAll,
// or lazily via Iter. Get, First, and Count cover the exactly-one, first-match,
// and total-only cases.
//
// # Errors
//
// Failures map to a small taxonomy of sentinel errors (ErrResourceNotFound,
// ErrMultipleResourcesFound, ErrAuthorization, ...) checked with errors.Is,
// plus OperationOutcomeError for server-reported validation failures. Helpers
// IsNotFound, IsMultipleFound, and IsOperationOutcome make branching easy.
//
// # Caching
//
// The package includes a pluggable Cache abstraction with in-memory, NATS
// key-value, and no-op implementations. When enabled, every materialized
// resource refreshes its cache entry and reference resolution consults the
// cache before the network.
package fhir
