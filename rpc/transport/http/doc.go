// Package http implements the connection for the textual HTTP protocol, carrying
// either JSON or VelocyPack bodies. It provides the TextConnection, a concrete
// implementation of the transport.IConnection interface.
//
// The package focuses on:
//   - Mapping protocol neutral requests onto HTTP methods, URLs and headers
//   - Basic or bearer authentication, TLS and forward proxies (incl. proxy credentials)
//   - A single socket per connection with keep-alive and time-to-live handling
//   - Classification of failures into the typed errors of the common package
//
// Key Components:
//
//   - TextConnection: Owns one http.Transport limited to one socket. A weighted
//     semaphore queues concurrent callers, so requests on one connection are never
//     sent in parallel. Before each request the socket is dropped if it was idle
//     longer than the keep-alive announced by the server (30 seconds if the server
//     announces none) or if it is older than the configured TTL.
//
// Responses with a VelocyPack content type keep their body binary, all other bodies
// are kept as text. Both representations are available through common.Body.
package http
