package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	v1 "github.com/acme/catalog-console/api/v1"
)

// APIError is returned when the API answers with an unexpected status.
type APIError struct {
	Method     string
	Route      string
	StatusCode int
	// Message is the server's {"error": ...} text, or the raw body.
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s returned status %d", e.Method, e.Route, e.StatusCode)
	}
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Route, e.StatusCode, e.Message)
}

func newAPIError(method, route string, status int, body []byte) *APIError {
	e := &APIError{Method: method, Route: route, StatusCode: status}
	var apiErr v1.Error
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		e.Message = apiErr.Error
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is an API 409, e.g. a duplicate SKU.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}
