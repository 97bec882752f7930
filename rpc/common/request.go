package common

import (
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"
)

// --------------------------------------------------------------------------
// Request Type
// --------------------------------------------------------------------------

// RequestType is the method of a request
type RequestType uint8

const (
	RequestGet RequestType = iota
	RequestHead
	RequestPost
	RequestPut
	RequestPatch
	RequestDelete
	RequestOptions
)

// String returns the HTTP method name of the request type
func (t RequestType) String() string {
	switch t {
	case RequestGet:
		return http.MethodGet
	case RequestHead:
		return http.MethodHead
	case RequestPost:
		return http.MethodPost
	case RequestPut:
		return http.MethodPut
	case RequestPatch:
		return http.MethodPatch
	case RequestDelete:
		return http.MethodDelete
	case RequestOptions:
		return http.MethodOptions
	default:
		return "UNKNOWN"
	}
}

// VSTCode returns the numeric request type used in VelocyStream request headers
func (t RequestType) VSTCode() int64 {
	switch t {
	case RequestDelete:
		return 0
	case RequestGet:
		return 1
	case RequestPost:
		return 2
	case RequestPut:
		return 3
	case RequestHead:
		return 4
	case RequestPatch:
		return 5
	case RequestOptions:
		return 6
	default:
		return -1
	}
}

// RequestTypeFromVSTCode is the inverse of RequestType.VSTCode
func RequestTypeFromVSTCode(code int64) (RequestType, error) {
	for t := RequestGet; t <= RequestOptions; t++ {
		if t.VSTCode() == code {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown request type code %d", code)
}

// ParseRequestType converts an HTTP method name to a RequestType
func ParseRequestType(method string) (RequestType, error) {
	for t := RequestGet; t <= RequestOptions; t++ {
		if strings.EqualFold(t.String(), method) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unsupported method %q", method)
}

// --------------------------------------------------------------------------
// Request
// --------------------------------------------------------------------------

// Request is a protocol neutral request. It is built once per logical call,
// only the parameter maps and the lazy body cache change afterwards.
type Request struct {
	Database     string
	Method       RequestType
	Path         string
	QueryParams  map[string]string
	HeaderParams map[string]string
	Body         Body
}

// NewRequest creates a request for the given database (may be empty), method and path
func NewRequest(database string, method RequestType, path string) *Request {
	return &Request{
		Database:     database,
		Method:       method,
		Path:         path,
		QueryParams:  make(map[string]string),
		HeaderParams: make(map[string]string),
	}
}

// PutQueryParam sets a query parameter. Nil values (including typed nil pointers,
// slices, maps and interfaces) are dropped, pointers are dereferenced and the
// last write wins.
func (r *Request) PutQueryParam(key string, value any) *Request {
	if value == nil {
		return r
	}
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return r
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return r
		}
	}

	if r.QueryParams == nil {
		r.QueryParams = make(map[string]string)
	}
	r.QueryParams[key] = fmt.Sprint(v.Interface())
	return r
}

// PutHeaderParam sets a header parameter, empty values are dropped
func (r *Request) PutHeaderParam(key, value string) *Request {
	if value == "" {
		return r
	}
	if r.HeaderParams == nil {
		r.HeaderParams = make(map[string]string)
	}
	r.HeaderParams[key] = value
	return r
}

// SetBody sets a binary (VelocyPack) body
func (r *Request) SetBody(body []byte) *Request {
	r.Body.SetBytes(body)
	return r
}

// SetJSONBody sets a textual (JSON) body
func (r *Request) SetJSONBody(body string) *Request {
	r.Body.SetText(body)
	return r
}

// SerializeBody returns the body bytes appropriate for the given protocol
func (r *Request) SerializeBody(protocol Protocol, codec BodyCodec) ([]byte, error) {
	return r.Body.Encoded(protocol, codec)
}

// DatabasePath returns the path including the database prefix (/_db/<database>) if a database is set
func (r *Request) DatabasePath() string {
	if r.Database == "" {
		return r.Path
	}
	return "/_db/" + r.Database + r.Path
}

// EncodedQuery returns the url encoded query parameters (keys sorted)
func (r *Request) EncodedQuery() string {
	values := make(url.Values, len(r.QueryParams))
	for k, v := range r.QueryParams {
		values.Set(k, v)
	}
	return values.Encode()
}

// BuildURL builds the wire ready URL: the base url without one trailing '/',
// the database segment if a database is set, the path and the query parameters
func (r *Request) BuildURL(baseURL string) string {
	var sb strings.Builder

	sb.WriteString(strings.TrimSuffix(baseURL, "/"))
	sb.WriteString(r.DatabasePath())

	if len(r.QueryParams) > 0 {
		if strings.Contains(r.Path, "?") {
			sb.WriteByte('&')
		} else {
			sb.WriteByte('?')
		}
		sb.WriteString(r.EncodedQuery())
	}

	return sb.String()
}

func (r *Request) String() string {
	return fmt.Sprintf("%s %s", r.Method, r.DatabasePath())
}
