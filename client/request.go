package client

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
)

// File is a file attachment on a multipart request.
type File struct {
	Name     string
	FileName string
	Data     []byte
}

// Request describes a single REST call before execution. Route is the
// bucket key: the method plus the path template with only its major
// parameters (channel, guild and webhook ids) materialized, so related
// requests serialize from the first call. Path is the fully materialized
// path relative to the API base.
type Request struct {
	Method string
	Route  string
	Path   string

	Body        []byte
	ContentType string
	Headers     http.Header

	files []File
}

// NewRequest creates a request for the given method, route key and path.
func NewRequest(method string, route string, path string) *Request {
	return &Request{
		Method:  method,
		Route:   route,
		Path:    path,
		Headers: http.Header{},
	}
}

// WithJSONBody attaches a JSON serialized body.
func (r *Request) WithJSONBody(v interface{}) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildingRequest, err)
	}

	r.Body = body
	r.ContentType = "application/json"

	return r, nil
}

// WithFile attaches a file, turning the request into a multipart upload.
// When a JSON body is also present it is carried in the payload_json
// field.
func (r *Request) WithFile(file File) *Request {
	r.files = append(r.files, file)
	return r
}

// build returns the final body bytes and content type, assembling a
// multipart payload when files are attached.
func (r *Request) build() ([]byte, string, error) {
	if len(r.files) == 0 {
		return r.Body, r.ContentType, nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if len(r.Body) > 0 {
		field, err := writer.CreateFormField("payload_json")
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrBuildingRequest, err)
		}
		if _, err := field.Write(r.Body); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrBuildingRequest, err)
		}
	}

	for i, file := range r.files {
		name := file.Name
		if name == "" {
			name = fmt.Sprintf("file%d", i)
		}

		part, err := writer.CreateFormFile(name, file.FileName)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrBuildingRequest, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrBuildingRequest, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBuildingRequest, err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}
