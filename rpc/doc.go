// Package rpc is the connection layer of the database driver. It moves
// requests to a server and responses back over HTTP or VelocyStream.
//
// The package is organized into several subpackages:
//
//   - common: Requests, responses, bodies, host descriptions, the connection
//     configuration, authentication and the error taxonomy.
//
//   - serializer: Conversion between JSON and VelocyPack payloads.
//
//   - transport: The connection abstraction with an HTTP and a VST
//     implementation, request observers and metrics.
//
//   - pool: Connection creation for the configured protocol and a per host
//     pool of reusable connections.
//
//   - client: Document reads, the version endpoint and host failover on top
//     of any executor.
package rpc
