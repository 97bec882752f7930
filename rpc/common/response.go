package common

import (
	"fmt"
	"strings"
)

// Response is a protocol neutral response
type Response struct {
	StatusCode int
	// Meta holds the response headers, duplicates are overwritten by the last value
	Meta map[string]string
	Body Body
}

// NewResponse creates an empty response with the given status code
func NewResponse(statusCode int) *Response {
	return &Response{
		StatusCode: statusCode,
		Meta:       make(map[string]string),
	}
}

// Header returns the meta value for a key, case-insensitive
func (r *Response) Header(key string) string {
	if v, ok := r.Meta[key]; ok {
		return v
	}
	for k, v := range r.Meta {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) String() string {
	return fmt.Sprintf("response %d", r.StatusCode)
}
