// Package neterr defines the tagged request-error taxonomy shared by
// the retry engine, the offline queue, and the HTTP client wrapper.
// Callers match on the error kind instead of probing optional fields.
package neterr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind tags a request failure with its taxonomy class.
type Kind int

const (
	// KindOther covers failures that carry no transport signal,
	// including non-retryable HTTP client errors wrapped elsewhere.
	KindOther Kind = iota

	// KindNetwork means no response was received at all.
	KindNetwork

	// KindTimeout means the request or its context timed out.
	KindTimeout

	// KindHTTPStatus means a response arrived with a non-2xx status.
	KindHTTPStatus
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	default:
		return "other"
	}
}

// RequestError is the tagged failure type for HTTP-shaped operations.
type RequestError struct {
	Kind       Kind
	StatusCode int // set when Kind == KindHTTPStatus
	Err        error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		if e.Err != nil {
			return fmt.Sprintf("http status %d: %v", e.StatusCode, e.Err)
		}
		return fmt.Sprintf("http status %d", e.StatusCode)
	case KindNetwork:
		return fmt.Sprintf("network failure: %v", e.Err)
	case KindTimeout:
		return fmt.Sprintf("timeout: %v", e.Err)
	default:
		return fmt.Sprintf("request failed: %v", e.Err)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// Network wraps a pure connectivity failure (no response received).
func Network(err error) *RequestError {
	return &RequestError{Kind: KindNetwork, Err: err}
}

// Timeout wraps a request or context timeout.
func Timeout(err error) *RequestError {
	return &RequestError{Kind: KindTimeout, Err: err}
}

// HTTPStatus wraps a response that arrived with the given status code.
func HTTPStatus(code int, err error) *RequestError {
	return &RequestError{Kind: KindHTTPStatus, StatusCode: code, Err: err}
}

// Classify maps an arbitrary error onto the taxonomy. Errors already
// tagged pass through; transport errors from net/http are inspected
// for timeout and connectivity signals; anything else is KindOther.
func Classify(err error) *RequestError {
	if err == nil {
		return nil
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Network(err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Network(err)
	}

	return &RequestError{Kind: KindOther, Err: err}
}

// IsRetryable is the default retry predicate: retry pure network
// failures, timeouts, and responses with status >=500, 408 or 429.
// Every other failure is terminal.
func IsRetryable(err error) bool {
	re := Classify(err)
	if re == nil {
		return false
	}
	switch re.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindHTTPStatus:
		return re.StatusCode >= 500 || re.StatusCode == 408 || re.StatusCode == 429
	default:
		return false
	}
}

// StatusCode extracts the HTTP status from a tagged error, or 0 when
// the failure carried no response.
func StatusCode(err error) int {
	re := Classify(err)
	if re == nil {
		return 0
	}
	return re.StatusCode
}
