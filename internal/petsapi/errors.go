package petsapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ConnectivityError reports a transport-level failure: the request never
// reached the server. Operations failing this way are retried on a later
// sync pass.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("network unavailable: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// APIError reports that the server was reached and rejected the request
// (validation, authorization, conflict). Operations failing this way are
// dropped rather than retried.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("pets API error: %s", e.Status)
	}
	return fmt.Sprintf("pets API error: %s - %s", e.Status, e.Body)
}

// IsConnectivity reports whether err is (or wraps) a transport-level
// failure. Everything else returned by this package's calls is an
// application failure.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// newAPIError builds an APIError from a non-2xx response, capturing a bounded
// amount of the body for diagnostics.
func newAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
