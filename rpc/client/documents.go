package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dbwire/rpc/common"
	"github.com/ValentinKolb/dbwire/rpc/serializer"
	"net/url"
)

// Header names understood by the document endpoints
const (
	HeaderIfNoneMatch    = "If-None-Match"
	HeaderIfMatch        = "If-Match"
	HeaderAllowDirtyRead = "x-arango-allow-dirty-read"
	HeaderTransactionID  = "x-arango-trx-id"
)

// DocumentOptions are the options of the document read helpers
type DocumentOptions struct {
	// CatchException turns 404, 304 and 412 failures into a "not found" result
	CatchException bool
	// IfNoneMatch returns 304 if the revision still matches
	IfNoneMatch string
	// IfMatch returns 412 if the revision does not match
	IfMatch string
	// AllowDirtyRead allows reading from followers
	AllowDirtyRead bool
	// TransactionID runs the read inside a stream transaction
	TransactionID string
}

// DefaultDocumentOptions returns the options with CatchException enabled
func DefaultDocumentOptions() DocumentOptions {
	return DocumentOptions{CatchException: true}
}

// VersionInfo is the answer of the version endpoint
type VersionInfo struct {
	Server  string            `json:"server"`
	Version string            `json:"version"`
	License string            `json:"license"`
	Details map[string]string `json:"details,omitempty"`
}

// Client offers typed helpers on top of an Executor for one database
type Client struct {
	clientAdapter
}

// NewClient creates a client for database (empty for the default database)
func NewClient(executor Executor, database string, protocol common.Protocol) *Client {
	return &Client{
		clientAdapter{
			database: database,
			protocol: protocol,
			executor: executor,
		},
	}
}

// --------------------------------------------------------------------------
// Methods
// --------------------------------------------------------------------------

// Database returns the database of the client
func (c *Client) Database() string {
	return c.database
}

// Execute sends a raw request
func (c *Client) Execute(ctx context.Context, req *common.Request) (*common.Response, error) {
	return c.executor.Execute(ctx, req)
}

// Version returns the server version
func (c *Client) Version(ctx context.Context, details bool) (info VersionInfo, err error) {
	req := common.NewRequest(c.database, common.RequestGet, "/_api/version")
	if details {
		req.PutQueryParam("details", true)
	}
	_, err = invokeRequest(ctx, c.executor, c.protocol, req, &info)
	return info, err
}

// GetDocument reads a document into out. With CatchException a missing document
// (or an unmet revision precondition) returns false and no error.
func (c *Client) GetDocument(ctx context.Context, collection, key string, out any, opts DocumentOptions) (found bool, err error) {
	req := c.documentRequest(common.RequestGet, collection, key, opts)
	if _, err = invokeRequest(ctx, c.executor, c.protocol, req, out); err != nil {
		if suppressNotFound(err, opts.CatchException) {
			Logger.Debugf("Document %s/%s not found: %v", collection, key, err)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DocumentExists checks for a document with a HEAD request. With CatchException
// a missing document returns false and no error.
func (c *Client) DocumentExists(ctx context.Context, collection, key string, opts DocumentOptions) (bool, error) {
	req := c.documentRequest(common.RequestHead, collection, key, opts)
	if _, err := invokeRequest(ctx, c.executor, c.protocol, req, nil); err != nil {
		if suppressNotFound(err, opts.CatchException) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetDocuments reads multiple documents by key into out (a pointer to a slice).
// Errors are returned as they are, the catch option does not apply.
func (c *Client) GetDocuments(ctx context.Context, collection string, keys []string, out any, opts DocumentOptions) error {
	req := common.NewRequest(c.database, common.RequestPut, "/_api/document/"+url.PathEscape(collection))
	req.PutQueryParam("onlyget", true)
	c.putDocumentHeaders(req, opts)

	if err := serializer.EncodeBody(&req.Body, c.protocol, keys); err != nil {
		return fmt.Errorf("failed to encode keys: %w", err)
	}
	_, err := invokeRequest(ctx, c.executor, c.protocol, req, out)
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *Client) documentRequest(method common.RequestType, collection, key string, opts DocumentOptions) *common.Request {
	path := fmt.Sprintf("/_api/document/%s/%s", url.PathEscape(collection), url.PathEscape(key))
	req := common.NewRequest(c.database, method, path)
	c.putDocumentHeaders(req, opts)
	return req
}

func (c *Client) putDocumentHeaders(req *common.Request, opts DocumentOptions) {
	req.PutHeaderParam(HeaderIfNoneMatch, opts.IfNoneMatch).
		PutHeaderParam(HeaderIfMatch, opts.IfMatch).
		PutHeaderParam(HeaderTransactionID, opts.TransactionID)
	if opts.AllowDirtyRead {
		req.PutHeaderParam(HeaderAllowDirtyRead, "true")
	}
}
