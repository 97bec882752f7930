package transport

import (
	"context"
	"github.com/ValentinKolb/dbwire/rpc/common"
)

// Future is the result of an asynchronous request
type Future struct {
	done chan struct{}
	resp *common.Response
	err  error
}

// ExecuteAsync runs conn.Execute on a new goroutine. The future completes with
// exactly the response and error the blocking call returns.
func ExecuteAsync(ctx context.Context, conn IConnection, req *common.Request) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.resp, f.err = conn.Execute(ctx, req)
	}()
	return f
}

// Done returns a channel that is closed once the request completed
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the request completed
func (f *Future) Get() (*common.Response, error) {
	<-f.done
	return f.resp, f.err
}

// Await blocks until the request completed or ctx is done. Giving up on the wait
// does not cancel the request, use the context passed to ExecuteAsync for that.
func (f *Future) Await(ctx context.Context) (*common.Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
