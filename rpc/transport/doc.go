// Package transport defines the connection abstraction shared by the wire protocols.
// It provides a common contract that all connection implementations must fulfill,
// enabling protocol-agnostic communication with a database server.
//
// Key Components:
//
//   - IConnection: Interface implemented by the HTTP (transport/http) and the
//     VelocyStream (transport/vst) connection.
//
//   - Future / ExecuteAsync: Asynchronous facade over IConnection.Execute with
//     identical results and errors.
//
//   - NewCurlObserver: Request observer logging every request as curl command.
//
//   - RecordRequest / WriteMetrics: Request counters and latency histograms per protocol.
package transport
