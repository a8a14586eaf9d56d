// Package http contains the HTTP transport layer: chi handlers that
// translate between the REST API and the analysis service, with errors
// rendered through the shared API error envelope.
package http
