// Package fhirclient provides the primary entry point for constructing a
// FHIR client backed by a real HTTP transport.
//
// It layers configuration, HTTP transport, authentication, and response
// caching on top of the types defined in the fhir package. Most applications
// should import fhirclient to build a client, then use the returned
// *fhir.Client to work with resources.
//
// Quick start
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
//
//	  // Minimal: just a base url (no auth).
//	  cli, err := fhirclient.New(&fhir.Config{BaseURL: "https://fhir.example.com/R4"})
//	  if err != nil { log.Fatal(err) }
//
//	  // Or with an Authorization header value you already have:
//	  cli, err = fhirclient.New(&fhir.Config{
//	    BaseURL:       "https://fhir.example.com/R4",
//	    Authorization: "Bearer eyJhbGciOi...",
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  patient, err := cli.Resources("Patient").Search("_id", "p1").Get(ctx)
//	  if err != nil { log.Fatal(err) }
//	  _ = patient
//	}
//
// # Helpers
//
// The package also provides convenience constructors NewWithEndpoint,
// NewWithAuthorization, and NewWithBasicAuth that wrap New with the
// appropriate configuration.
package fhirclient
