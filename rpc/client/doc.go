// Package client implements typed helpers on top of the connections of this module.
//
// The package focuses on:
//   - Document reads with the not-found suppression of the driver
//   - Failover across the hosts of a cluster
//
// Key Components:
//
//   - Executor: anything that executes a request. Connections, logical pool
//     connections and the FailoverExecutor implement it.
//
//   - Client: typed helpers for one database. GetDocument and DocumentExists
//     turn 404, 304 and 412 into a "not found" result when CatchException is set,
//     except for the "transaction not found" error (1655) which is always returned.
//     GetDocuments returns all errors unchanged.
//
//   - FailoverExecutor: sends requests to the current host and moves on to the
//     next one after transport failures and timeouts (exponential backoff with
//     jitter). Server failures are not retried, redirects to a known coordinator
//     are followed.
//
// Usage Example:
//
//	p := pool.NewHostPool(factory, auth)
//	executor, _ := client.NewFailoverExecutor(p, hosts)
//	c := client.NewClient(executor, "mydb", config.Protocol)
//
//	var doc map[string]any
//	found, err := c.GetDocument(ctx, "users", "alice", &doc, client.DefaultDocumentOptions())
//
// Thread Safety:
//
//	All types are safe for concurrent use.
package client
