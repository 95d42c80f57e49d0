package embedding

// APIError is the base error type for sidecar API errors.
type APIError struct {
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// ValidationError is returned when the request is invalid (HTTP 400).
type ValidationError struct {
	APIError
}

// ServerError is returned when the sidecar reports an error (HTTP 5xx).
type ServerError struct {
	APIError
}

// NetworkError is returned on connection-level failures such as refused
// connections or timeouts.
type NetworkError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is / errors.As.
func (e *NetworkError) Unwrap() error {
	return e.Cause
}
