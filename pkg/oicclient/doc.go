// Package oicclient provides the main entry point for creating Oracle
// Integration Cloud API clients.
//
// Basic usage:
//
//	client, err := oicclient.New(ctx, &oic.Config{
//		BaseURL:        "https://design.integration.example.com",
//		IdentityDomain: "idcs-1234",
//		TokenURL:       "https://idcs-1234.identity.oraclecloud.com/oauth2/v1/token",
//		ClientID:       "client-id",
//		ClientSecret:   "client-secret",
//		Scope:          "https://example.integration.ocp.oraclecloud.com:443urn:opc:resource:consumer::all",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	integrations, err := client.Integrations().ListAll(ctx, nil)
package oicclient
