package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// NotFoundError reports that the upstream has no data for a key. It is a
// valid negative result, not a failure.
type NotFoundError struct {
	Key string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("not_found: %s", e.Key)
}

// TransientError indicates a network failure, timeout, or malformed body
// where a well-formed one was expected. The item is retried on a later run.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string {
	return fmt.Errorf("transient: %w", e.Err).Error()
}

func (e TransientError) Unwrap() error {
	return e.Err
}

// BlockedError indicates the upstream is actively rejecting our traffic
// pattern. It is fatal to the whole run, not just the current item.
type BlockedError struct {
	Host string
	Err  error
}

func (e BlockedError) Error() string {
	return fmt.Errorf("blocked by %s: %w", e.Host, e.Err).Error()
}

func (e BlockedError) Unwrap() error {
	return e.Err
}

// InvalidInputError rejects an identifier before any network call.
type InvalidInputError struct {
	Input string
	Err   error
}

func (e InvalidInputError) Error() string {
	return fmt.Errorf("invalid input %q: %w", e.Input, e.Err).Error()
}

func (e InvalidInputError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a negative upstream result.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsBlocked reports whether err must abort the whole batch.
func IsBlocked(err error) bool {
	var b BlockedError
	return errors.As(err, &b)
}

// IsTransient reports whether err should fail only the current item.
func IsTransient(err error) bool {
	var tr TransientError
	return errors.As(err, &tr)
}

// Classify maps a transport error and HTTP status onto the outcome taxonomy.
// Rate-limit and service-unavailable statuses signal an active block; other
// server errors and network failures are transient.
func Classify(host string, err error, statusCode int) error {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		return BlockedError{Host: host, Err: wrapped}
	case http.StatusNotFound:
		return NotFoundError{Key: host}
	}

	if statusCode >= http.StatusBadRequest {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		return TransientError{Err: wrapped}
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TransientError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransientError{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return TransientError{Err: err}
	}
	return TransientError{Err: err}
}

// OutcomeLabel names the outcome category for metrics and logs.
func OutcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsBlocked(err):
		return "blocked"
	case IsNotFound(err):
		return "not_found"
	case IsTransient(err):
		return "transient"
	default:
		var invalid InvalidInputError
		if errors.As(err, &invalid) {
			return "invalid_input"
		}
		return "other"
	}
}
