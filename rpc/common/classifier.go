package common

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	// errorStatus is the first status code treated as failure. 3xx is included
	// because conditional reads answer 304 which callers may want to suppress.
	errorStatus = 300

	// HeaderEndpoint carries the coordinator a client is redirected to
	HeaderEndpoint = "X-Arango-Endpoint"
)

// errorEntity is the structured error body returned by the server
type errorEntity struct {
	Error        bool   `json:"error"`
	Code         int    `json:"code"`
	ErrorNum     int    `json:"errorNum"`
	ErrorMessage string `json:"errorMessage"`
}

// CheckResponse inspects a response and returns a DomainError if the status code
// signals a failure. The body (JSON or binary, converted through codec) is parsed
// for the server error number and message.
func CheckResponse(resp *Response, codec BodyCodec) error {
	if resp == nil || resp.StatusCode < errorStatus {
		return nil
	}

	// redirect to another coordinator
	if resp.StatusCode == http.StatusServiceUnavailable {
		if endpoint := resp.Header(HeaderEndpoint); endpoint != "" {
			return &DomainError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("Response Code: %d, redirected to %s", resp.StatusCode, endpoint),
				Endpoint:   endpoint,
			}
		}
	}

	if entity, ok := parseErrorEntity(resp, codec); ok {
		return &DomainError{
			StatusCode: resp.StatusCode,
			ErrorNum:   entity.ErrorNum,
			Message:    entity.ErrorMessage,
		}
	}

	return &DomainError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("Response Code: %d", resp.StatusCode),
	}
}

// parseErrorEntity decodes the structured error body, ok is false if the body has none
func parseErrorEntity(resp *Response, codec BodyCodec) (errorEntity, bool) {
	var entity errorEntity
	if resp.Body.IsEmpty() {
		return entity, false
	}

	text, err := resp.Body.Text(codec)
	if err != nil || text == "" {
		return entity, false
	}
	if err := json.Unmarshal([]byte(text), &entity); err != nil {
		return entity, false
	}
	if entity.ErrorNum == 0 && entity.ErrorMessage == "" {
		return entity, false
	}
	return entity, true
}
