// Package oic provides types, interfaces, and helpers for automating the
// Oracle Integration Cloud (OIC) management API.
//
// # Overview
//
// The oic package defines the schema-less resource payload (Object), the
// resource-kind gateway interfaces (Gateway, ConnectionsGateway,
// IntegrationsGateway and friends), the error taxonomy, the mergeable
// WorkflowResult, the PageIterator used by every listing, and the cache
// backends. A concrete implementation of the gateways is provided by the
// oicclient package, which wires configuration, transport, and authentication.
//
// Getting a client
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/WolVesz/oic-devops/pkg/oic"
//	  "github.com/WolVesz/oic-devops/pkg/oicclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  api, err := oicclient.New(ctx, &oic.Config{
//	    BaseURL:        "https://design.integration.us-phoenix-1.ocp.oraclecloud.com",
//	    IdentityDomain: "myinstance",
//	    TokenURL:       "https://idcs-xxxx.identity.oraclecloud.com/oauth2/v1/token",
//	    ClientID:       "client-id",
//	    ClientSecret:   "client-secret",
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  integrations, err := api.Integrations().ListAll(ctx, nil)
//	  if err != nil { log.Fatal(err) }
//	  _ = integrations
//	}
//
// # Pagination
//
// The remote service answers list calls with several envelopes
// ({items, hasMore, limit}, {elements, totalResults, hasMore}, or a bare
// array) and does not always report hasMore truthfully. PageIterator drives a
// ListFunc through all of them and always terminates: on hasMore=false, on
// reaching a reported total, on an empty page, on the page ceiling, on the
// maximum offset, or on a 400 returned after at least one page.
//
// # Results
//
// Workflows report through WorkflowResult. Adding an error forces Success to
// false, and Merge is associative so partial results from workers can be
// combined in any grouping.
package oic
