// Package cmd implements the command-line interface of dbwire. It provides a
// hierarchical command structure to send requests over the connections of this
// module.
//
// The package is organized into several subpackages:
//
//   - api: Raw requests and the server version (request, version)
//   - doc: Document reads (get, exists, get-many)
//   - perf: Throughput benchmarks of the connections
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dbwire -help for a list of all commands.
package cmd
