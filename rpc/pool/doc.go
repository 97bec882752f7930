/*
Package pool manages the physical connections of a client.

A ConnectionFactory constructs the connection variant of the configured protocol
(HTTP or VelocyStream) and opens it. A HostPool keeps up to ConnectionsPerHost
connections per host and hands them out round robin. Closed connections are
replaced on the next Get.

Callers that should survive outages use HostPool.Connection: the returned
connection resolves a live physical connection on every call. After the server
went away the first request fails with the transport error, the next one
reconnects.

	factory, err := pool.NewConnectionFactory(config)
	if err != nil {
		return err
	}
	p := pool.NewHostPool(factory, common.AuthenticationFromConfig(config))
	defer p.Close()

	resp, err := p.Connection(host).Execute(ctx, req)

Pool statistics (live, created and discarded connections) are kept in a
go-metrics registry, see HostPool.Registry.
*/
package pool
