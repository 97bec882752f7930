package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/serializer"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// Executor executes a single request. Connections, logical pool connections and
// the FailoverExecutor implement it.
type Executor interface {
	Execute(ctx context.Context, req *common.Request) (*common.Response, error)
}

// clientAdapter stores everything needed to send requests for one database
type clientAdapter struct {
	database string
	protocol common.Protocol
	executor Executor
}

// invokeRequest is a helper function used by all client methods to send requests.
// The request is executed and, if out is not nil, the response body is decoded into out.
// Failed responses are returned together with their error.
func invokeRequest(ctx context.Context, executor Executor, protocol common.Protocol, req *common.Request, out any) (*common.Response, error) {
	resp, err := executor.Execute(ctx, req)
	if err != nil {
		return resp, err
	}

	if out != nil && !resp.Body.IsEmpty() {
		if err := serializer.DecodeBody(&resp.Body, protocol, out); err != nil {
			return resp, fmt.Errorf("failed to decode response of %s: %w", req, err)
		}
	}
	return resp, nil
}

// suppressNotFound implements the catch option of the document helpers: errors
// with the status codes 404, 304 and 412 are swallowed, except when the server
// reports an unknown transaction.
func suppressNotFound(err error, catch bool) (suppressed bool) {
	if !catch {
		return false
	}
	d, ok := common.AsDomainError(err)
	if !ok || !d.IsNotFoundLike() {
		return false
	}
	return d.ErrorNum != common.ErrorNumTransactionNotFound
}
