package registry

import (
	"fmt"
	"strings"
)

// MissingToolError reports a call to a tool name absent from every loaded
// catalog.
type MissingToolError struct {
	Name string
}

func (e *MissingToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// ParameterValidationError reports required fields missing from the call
// arguments. Raised before any network call is attempted.
type ParameterValidationError struct {
	Tool    string
	Missing []string
}

func (e *ParameterValidationError) Error() string {
	return fmt.Sprintf("tool %q missing required parameters: %s", e.Tool, strings.Join(e.Missing, ", "))
}

// NetworkError reports a transport-level failure where no HTTP response was
// received. An HTTP response with an error status is not a NetworkError.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RequestError reports any other unexpected failure while building or
// sending the request.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
