package common

import (
	"context"
	"errors"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net"
	"os"
	"testing"
)

// fakeNetError is a net.Error with a configurable timeout flag
type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "fake net error" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

var _ net.Error = fakeNetError{}

func TestClassifyIOError(t *testing.T) {
	assert.Nil(t, ClassifyIOError("op", nil))

	assert.True(t, IsTimeout(ClassifyIOError("op", context.DeadlineExceeded)))
	assert.True(t, IsTimeout(ClassifyIOError("op", os.ErrDeadlineExceeded)))
	assert.True(t, IsTimeout(ClassifyIOError("op", fakeNetError{timeout: true})))

	assert.True(t, IsTransport(ClassifyIOError("op", io.EOF)))
	assert.True(t, IsTransport(ClassifyIOError("op", fakeNetError{})))

	// classified errors are kept
	domain := &DomainError{StatusCode: 404}
	assert.Same(t, domain, ClassifyIOError("op", domain))
	wrapped := fmt.Errorf("ctx: %w", &TimeoutError{Op: "inner"})
	assert.Equal(t, wrapped, ClassifyIOError("op", wrapped))
}

func TestTimeoutErrorMatchesDeadline(t *testing.T) {
	err := ClassifyIOError("request", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}

func TestConnectionClosedError(t *testing.T) {
	err := &TransportError{Op: "execute", Err: ErrConnectionClosed}
	assert.True(t, IsTransport(err))
	assert.True(t, IsConnectionClosed(err))
	assert.Contains(t, err.Error(), "connection closed")
}

func TestDomainError(t *testing.T) {
	err := fmt.Errorf("get document: %w", &DomainError{StatusCode: 404, ErrorNum: 1202, Message: "document not found"})

	d, ok := AsDomainError(err)
	require.True(t, ok)
	assert.True(t, d.IsNotFoundLike())
	assert.Equal(t, "Response: 404, Error: 1202 - document not found", d.Error())

	_, ok = AsDomainError(io.EOF)
	assert.False(t, ok)

	for code, expected := range map[int]bool{304: true, 412: true, 409: false, 500: false} {
		assert.Equal(t, expected, (&DomainError{StatusCode: code}).IsNotFoundLike(), code)
	}
}

func TestAuthenticationError(t *testing.T) {
	err := &AuthenticationError{StatusCode: 401, Err: errors.New("wrong credentials")}
	assert.True(t, IsAuthentication(fmt.Errorf("open: %w", err)))
	assert.Contains(t, err.Error(), "401")
}
