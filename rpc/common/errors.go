package common

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
)

// ErrorNumTransactionNotFound is the server error number for an unknown or expired stream transaction
const ErrorNumTransactionNotFound = 1655

// ErrConnectionClosed is the cause of every failure on a connection that has been closed
var ErrConnectionClosed = errors.New("connection closed")

// --------------------------------------------------------------------------
// Error Types
// --------------------------------------------------------------------------

// TimeoutError is returned when a handshake or request deadline is exceeded
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: timeout", e.Op)
	}
	return fmt.Sprintf("%s: timeout: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Timeout implements the net.Error style timeout check
func (e *TimeoutError) Timeout() bool { return true }

// TransportError is returned for socket and connection failures,
// including requests on a closed connection
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DomainError is a structured failure reported by the server
type DomainError struct {
	StatusCode int
	// ErrorNum is the server error number, 0 if the server did not report one
	ErrorNum int
	Message  string
	// Endpoint is set when the server redirects to another coordinator
	Endpoint string
}

func (e *DomainError) Error() string {
	if e.ErrorNum != 0 {
		return fmt.Sprintf("Response: %d, Error: %d - %s", e.StatusCode, e.ErrorNum, e.Message)
	}
	return e.Message
}

// IsNotFoundLike reports whether the status code is one of 404, 304 or 412
func (e *DomainError) IsNotFoundLike() bool {
	return e.StatusCode == 404 || e.StatusCode == 304 || e.StatusCode == 412
}

// AuthenticationError is returned when credentials are rejected during the handshake
type AuthenticationError struct {
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// IsTimeout reports whether err is (or wraps) a TimeoutError
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}

// IsTransport reports whether err is (or wraps) a TransportError
func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}

// IsConnectionClosed reports whether err was caused by a closed connection
func IsConnectionClosed(err error) bool {
	return errors.Is(err, ErrConnectionClosed)
}

// IsAuthentication reports whether err is (or wraps) an AuthenticationError
func IsAuthentication(err error) bool {
	var a *AuthenticationError
	return errors.As(err, &a)
}

// AsDomainError returns the DomainError wrapped by err
func AsDomainError(err error) (*DomainError, bool) {
	var d *DomainError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// ClassifyIOError maps a raw error of an I/O operation to a TimeoutError or TransportError.
// A rejected server certificate becomes an AuthenticationError.
// Errors that are already classified are returned unchanged.
func ClassifyIOError(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		timeoutErr   *TimeoutError
		transportErr *TransportError
		domainErr    *DomainError
		authErr      *AuthenticationError
	)
	if errors.As(err, &timeoutErr) || errors.As(err, &transportErr) ||
		errors.As(err, &domainErr) || errors.As(err, &authErr) {
		return err
	}

	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return &AuthenticationError{Err: fmt.Errorf("%s: %w", op, err)}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}
	return &TransportError{Op: op, Err: err}
}
