package pocketbase

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// FieldError describes why a single field was rejected.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int                   `json:"code"`
	Message string                `json:"message"`
	Data    map[string]FieldError `json:"data,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Data) == 0 {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	msg := fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	for field, fe := range e.Data {
		msg += fmt.Sprintf(" (%s: %s)", field, fe.Message)
	}
	return msg
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	apiErr.Status = resp.StatusCode
	return apiErr
}

// StatusOf returns the HTTP status carried by err, or 0 if err is not an
// *APIError.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsUnauthorized reports whether the backend rejected the credentials.
func IsUnauthorized(err error) bool {
	s := StatusOf(err)
	return s == http.StatusUnauthorized || s == http.StatusForbidden
}
