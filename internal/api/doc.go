// Package api implements the tcplink admin HTTP API and event stream.
//
// This package provides:
//   - REST endpoints for link status and control (connect, close, send,
//     subscribe, publish)
//   - Read access to connected peers and their stored sessions
//   - A WebSocket hub relaying link events
//   - Bearer token authentication with ticket-based WebSocket auth
//   - The Prometheus scrape endpoint
//
// # Security
//
// Requests carry an HS256 bearer token issued by the auth package. A viewer
// token reads; an operator token also drives the link. WebSocket connections
// use single-use tickets so the token never appears in a URL. With no
// secret configured the API is open and every caller is an operator.
package api
