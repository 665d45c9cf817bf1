package eg4

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoggedIn is returned when an authenticated call is made without a
	// session, either before Login or after the server rejected the session.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrClientClosed is returned by every call after Close.
	ErrClientClosed = errors.New("client closed")

	// ErrNoInverters is returned by Login when the account has no devices.
	ErrNoInverters = errors.New("no inverters found in the response data")

	// ErrNoInverterSelected is returned by read calls when no serial number is
	// configured or selected.
	ErrNoInverterSelected = errors.New("no inverter selected")

	// ErrInvalidInverterIndex is returned by SetSelectedInverter for an index
	// outside the discovered device list.
	ErrInvalidInverterIndex = errors.New("invalid inverter index")
)

// AuthError is returned when the monitor rejects the credentials or the
// session, or when an authenticated call is attempted without a session.
type AuthError struct {
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	msg := "eg4 authentication failed"
	if e.Endpoint != "" {
		msg += " (" + e.Endpoint + ")"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// APIError is any other failure: transport errors, timeouts, unexpected
// statuses and undecodable bodies.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	msg := "eg4 api request failed"
	if e.Endpoint != "" {
		msg += " (" + e.Endpoint + ")"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsAPIError reports whether err is or wraps an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
