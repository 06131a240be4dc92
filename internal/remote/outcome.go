package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags the result of a call or of a single attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindUnauthorized
	KindClientError
	KindServerError
	KindNetworkError
	KindExhaustedRetries
	// KindCanceled means the caller abandoned the call. It carries no connectivity signal.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindUnauthorized:
		return "unauthorized"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	case KindNetworkError:
		return "network_error"
	case KindExhaustedRetries:
		return "exhausted_retries"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Retryable reports whether an attempt ending with this kind may be repeated.
func (k Kind) Retryable() bool {
	return k == KindServerError || k == KindNetworkError
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNetwork      = errors.New("network failure")
	ErrExhausted    = errors.New("retries exhausted")
)

// StatusError is a non-2xx response from the remote API.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	const maxBody = 256
	body := e.Body
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	if len(body) == 0 {
		return fmt.Sprintf("remote responded with %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote responded with %d %s: %s", e.Status, http.StatusText(e.Status), body)
}

// Outcome is the terminal result of Execute. It is never persisted.
type Outcome struct {
	Kind      Kind
	Status    int
	Header    http.Header
	Body      []byte
	Attempts  int
	RequestID string

	// LastErr is set for network failures, exhausted retries and cancellation.
	LastErr error
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// Err maps the outcome onto the error taxonomy so callers can use errors.Is / errors.As.
func (o Outcome) Err() error {
	switch o.Kind {
	case KindSuccess:
		return nil
	case KindUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthorized, &StatusError{Status: o.Status, Body: o.Body})
	case KindClientError, KindServerError:
		if o.Status == 0 {
			return o.LastErr
		}
		return &StatusError{Status: o.Status, Body: o.Body}
	case KindExhaustedRetries:
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, o.Attempts, o.LastErr)
	default:
		return o.LastErr
	}
}

// classify turns a completed HTTP exchange into an attempt outcome.
func classify(status int, header http.Header, body []byte) Outcome {
	out := Outcome{Status: status, Header: header, Body: body}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		out.Kind = KindUnauthorized
	case status >= 500:
		out.Kind = KindServerError
		out.LastErr = &StatusError{Status: status, Body: body}
	case status >= 400:
		out.Kind = KindClientError
	default:
		out.Kind = KindSuccess
	}
	return out
}
