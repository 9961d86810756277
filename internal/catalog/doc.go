// Package catalog talks to the software catalog that holds the service and
// framework entities.
//
// The Client interface is the boundary the sync manager depends on. HTTPClient
// implements it for the catalog's REST API:
//
//	POST  {base}/auth/access_token                      exchange client credentials for a token
//	GET   {base}/blueprints/{blueprint}/entities        list every entity of a blueprint
//	PATCH {base}/blueprints/{blueprint}/entities/{id}   update entity properties
//
// Every failure is reported as one of AuthError, FetchError or UpdateError,
// each wrapping the transport cause.
package catalog
