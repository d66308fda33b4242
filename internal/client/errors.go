package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/distribution/archiver/api/errcode"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// ErrNoErrorsInBody is returned when an HTTP response body parses to an empty
// errcode.Errors slice.
var ErrNoErrorsInBody = errors.New("no error details found in HTTP response body")

// UnexpectedHTTPStatusError is returned when an unexpected HTTP status is
// returned when making an upstream api call.
type UnexpectedHTTPStatusError struct {
	Status string
	Body   string
}

func (e *UnexpectedHTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("received unexpected HTTP status: %s", e.Status)
	}
	return fmt.Sprintf("received unexpected HTTP status: %s: %s", e.Status, e.Body)
}

// UnexpectedHTTPResponseError is returned when an expected HTTP status code
// is returned, but the content was unexpected and failed to be parsed.
type UnexpectedHTTPResponseError struct {
	ParseErr   error
	StatusCode int
	Response   []byte
}

func (e *UnexpectedHTTPResponseError) Error() string {
	return fmt.Sprintf("error parsing HTTP %d response body: %s: %q", e.StatusCode, e.ParseErr.Error(), string(e.Response))
}

func (e *UnexpectedHTTPResponseError) Unwrap() error {
	return e.ParseErr
}

// UpstreamError is the error document returned by the store and the cluster
// RPC APIs. Both use a message and a numeric code; the store additionally
// sets Type to "error".
type UpstreamError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Code       int    `json:"code"`
	Type       string `json:"type,omitempty"`
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (HTTP %d): %s", e.StatusCode, e.Message)
}

func parseHTTPErrorResponse(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return err
	}

	statusCode := resp.StatusCode

	if len(body) == 0 {
		return &UnexpectedHTTPStatusError{Status: resp.Status}
	}

	ctHeader := resp.Header.Get("Content-Type")
	if ctHeader == "" {
		return &UnexpectedHTTPStatusError{Status: resp.Status, Body: string(bytes.TrimSpace(body))}
	}

	contentType, _, err := mime.ParseMediaType(ctHeader)
	if err != nil {
		return fmt.Errorf("failed parsing content-type: %w", err)
	}

	if contentType != "application/json" {
		return &UnexpectedHTTPStatusError{Status: resp.Status, Body: string(bytes.TrimSpace(body))}
	}

	// Archiver API errors come in an errcode envelope.
	if bytes.Contains(body, []byte(`"errors"`)) {
		var errs errcode.Errors
		if err := json.Unmarshal(body, &errs); err != nil {
			return &UnexpectedHTTPResponseError{
				ParseErr:   err,
				StatusCode: statusCode,
				Response:   body,
			}
		}
		if len(errs) == 0 {
			return &UnexpectedHTTPResponseError{
				ParseErr:   ErrNoErrorsInBody,
				StatusCode: statusCode,
				Response:   body,
			}
		}
		return errs
	}

	// Field matching is case-insensitive, so this covers both the
	// capitalized store document and the lower-case cluster one.
	upstream := &UpstreamError{StatusCode: statusCode}
	if err := json.Unmarshal(body, upstream); err != nil {
		return &UnexpectedHTTPResponseError{
			ParseErr:   err,
			StatusCode: statusCode,
			Response:   body,
		}
	}
	if upstream.Message == "" {
		return &UnexpectedHTTPStatusError{Status: resp.Status, Body: string(bytes.TrimSpace(body))}
	}

	return upstream
}

// HandleHTTPResponseError returns error parsed from HTTP response, if any.
// It returns nil if no error occurred (HTTP status 200-399). Otherwise it
// returns a typed error: errcode.Errors for archiver responses, an
// UpstreamError for store and cluster error documents, and an
// UnexpectedHTTPStatusError when the body carries nothing usable.
func HandleHTTPResponseError(resp *http.Response) error {
	if SuccessStatus(resp.StatusCode) {
		return nil
	}

	err := parseHTTPErrorResponse(resp)
	if uErr, ok := err.(*UnexpectedHTTPResponseError); ok && resp.StatusCode == http.StatusUnauthorized {
		return errcode.ErrorCodeUnauthorized.WithDetail(string(uErr.Response))
	}
	return err
}

// SuccessStatus returns true if the argument is a successful HTTP response
// code (in the range 200 - 399 inclusive).
func SuccessStatus(status int) bool {
	return status >= 200 && status <= 399
}
