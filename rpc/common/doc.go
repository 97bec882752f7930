// Package common provides the core data structures shared by all connection
// implementations of the client transport layer. It defines the protocol neutral
// message model, the connection configuration, host descriptions and the error
// taxonomy used to report failures to callers.
//
// The package focuses on:
//   - Request/Response model independent of the wire protocol (HTTP or VelocyStream)
//   - Lazy derivation between the textual (JSON) and binary (VelocyPack) body
//   - Configuration of timeouts, TLS, credentials and protocol selection
//   - Typed errors and the classification of responses into errors
//   - Custom logging implementation integrated with Dragonboat's logger facade
//
// Key Components:
//
//   - Request: Database scoped request with query/header parameters and a body.
//     BuildURL produces the wire ready path+query string used by the HTTP variant.
//
//   - Body: A single owned byte buffer plus a cached derived text view. The
//     missing representation is computed once on first access through a BodyCodec.
//
//   - ConnectionConfig: Resolved configuration consumed by connections and pools.
//
//   - TimeoutError, TransportError, DomainError, AuthenticationError: The error
//     taxonomy. CheckResponse maps failed responses to a DomainError.
//
// Errors are never downgraded to successful results by this package. Suppression
// of "not found" results is implemented by the callers in the client package.
package common
