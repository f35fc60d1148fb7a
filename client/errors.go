package client

import (
	stdjson "encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned when the token used to authenticate is not
// valid.
var ErrInvalidToken = errors.New("client: invalid token passed")

// ErrBuildingRequest wraps failures constructing the HTTP request before
// it is sent.
var ErrBuildingRequest = errors.New("client: building request")

// ErrRequest wraps transport failures executing a request.
var ErrRequest = errors.New("client: request error")

// ErrRequestCanceled is returned when the caller's context ended the
// request.
var ErrRequestCanceled = errors.New("client: request canceled")

// ErrChunkingResponse wraps failures reading the response body.
var ErrChunkingResponse = errors.New("client: chunking response")

// ErrParsing wraps failures decoding a response body.
var ErrParsing = errors.New("client: parsing response")

// ErrSegmentMissing is returned when a webhook url is missing a required
// path segment.
var ErrSegmentMissing = errors.New("client: webhook url segment missing")

// APIError is the error body the REST API returns on failures.
type APIError struct {
	Code    int                `json:"code"`
	Message string             `json:"message"`
	Errors  stdjson.RawMessage `json:"errors,omitempty"`
}

// ResponseError is returned for any non 2xx response. Body holds the raw
// response and API the decoded error body when one was present.
type ResponseError struct {
	Status int
	Body   []byte
	API    *APIError
}

func (e *ResponseError) Error() string {
	if e.API != nil && e.API.Message != "" {
		return fmt.Sprintf("client: status %d: %s (code %d)", e.Status, e.API.Message, e.API.Code)
	}

	return fmt.Sprintf("client: status %d", e.Status)
}

func newResponseError(status int, body []byte) *ResponseError {
	responseErr := &ResponseError{Status: status, Body: body}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && (apiErr.Code != 0 || apiErr.Message != "") {
		responseErr.API = &apiErr
	}

	return responseErr
}
