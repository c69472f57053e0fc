package model

import (
	"context"
	"errors"
	"fmt"
)

// TransportError is a failure to reach the model or get a successful status.
type TransportError struct {
	Provider   string
	StatusCode int // 0 when no response was received
	Message    string
	Retryable  bool
	Err        error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transport error (status %d): %s", e.Provider, e.StatusCode, truncate(msg, 200))
	}
	return fmt.Sprintf("%s transport error: %s", e.Provider, truncate(msg, 200))
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError is a reply that does not satisfy the declared schema.
type MalformedResponseError struct {
	Provider string
	Field    string // dotted path, "" for the reply as a whole
	Reason   string
}

func (e *MalformedResponseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s malformed response: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s malformed response: field %q: %s", e.Provider, e.Field, e.Reason)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// IsRetryable reports whether err is a transport failure worth retrying.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable
}

// statusError classifies a non-success HTTP status.
func statusError(provider string, status int, body string) *TransportError {
	return &TransportError{
		Provider:   provider,
		StatusCode: status,
		Message:    body,
		Retryable:  status == 429 || status >= 500,
	}
}

// networkError classifies a failure to complete the request.
func networkError(provider string, err error) *TransportError {
	// Timeouts, resets and refused connections may succeed later; a caller
	// cancellation never will.
	return &TransportError{
		Provider:  provider,
		Err:       err,
		Retryable: !errors.Is(err, context.Canceled),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
