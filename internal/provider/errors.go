package provider

import (
	"errors"
	"fmt"
)

// ErrConfigurationMissing is returned when a required endpoint or credential is blank.
var ErrConfigurationMissing = errors.New("configuration missing")

// ErrInterruptedWait is reported when a pacing wait is cut short.
var ErrInterruptedWait = errors.New("pacing wait interrupted")

// MalformedEndpointError is returned when a configured endpoint URL cannot be used.
type MalformedEndpointError struct {
	URL string
	Err error
}

func (e *MalformedEndpointError) Error() string {
	return fmt.Sprintf("malformed endpoint %q: %v", e.URL, e.Err)
}

func (e *MalformedEndpointError) Unwrap() error {
	return e.Err
}

// ProviderError is returned when a provider answers with a non-2xx status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Status     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: request failed with status %s", e.Provider, e.Status)
}

// ParseError is returned when a provider body is not the expected JSON.
type ParseError struct {
	Provider string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: failed to parse response: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrorKind names a class of geocoding failure for logging.
type ErrorKind string

const (
	KindConfigurationMissing ErrorKind = "configuration_missing"
	KindMalformedEndpoint    ErrorKind = "malformed_endpoint"
	KindProviderError        ErrorKind = "provider_error"
	KindParseError           ErrorKind = "parse_error"
	KindInterruptedWait      ErrorKind = "interrupted_wait"
	KindTransportError       ErrorKind = "transport_error"
)

// Kind classifies err. Errors that are not one of the typed failures are transport errors.
func Kind(err error) ErrorKind {
	var (
		malformed *MalformedEndpointError
		status    *ProviderError
		parse     *ParseError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigurationMissing):
		return KindConfigurationMissing
	case errors.Is(err, ErrInterruptedWait):
		return KindInterruptedWait
	case errors.As(err, &malformed):
		return KindMalformedEndpoint
	case errors.As(err, &status):
		return KindProviderError
	case errors.As(err, &parse):
		return KindParseError
	default:
		return KindTransportError
	}
}
