package osm

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (unknown user, bad window).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassMalformed represents successful responses that are not valid XML.
	ErrorClassMalformed ErrorClass = "malformed"
)

// HTTPError is returned when the OSM API answers with a non-success status.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
	// Body holds the start of the response body; OSM explains most 4xx
	// errors in plain text.
	Body string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("OSM %s error (status %d) for %s: %s", e.Class(), e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("OSM %s error (status %d) for %s", e.Class(), e.StatusCode, e.URL)
}

// Class classifies the error by status code.
func (e *HTTPError) Class() ErrorClass {
	return classifyStatus(e.StatusCode)
}

// TransportError is returned when the OSM API could not be reached.
type TransportError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("OSM request to %s failed: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is returned when a successful response cannot be
// decoded as the expected XML document.
type MalformedResponseError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("OSM response from %s is not valid XML: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// Classify returns the ErrorClass of an error returned by Client, or "" for
// errors that did not come from a fetch.
func Classify(err error) ErrorClass {
	var httpErr *HTTPError
	var transportErr *TransportError
	var malformedErr *MalformedResponseError

	switch {
	case errors.As(err, &httpErr):
		return httpErr.Class()
	case errors.As(err, &transportErr):
		return ErrorClassNetwork
	case errors.As(err, &malformedErr):
		return ErrorClassMalformed
	default:
		return ""
	}
}
