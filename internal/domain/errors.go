package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Domain errors.
var (
	// ErrTransport is returned for network failures, timeouts and non-2xx responses.
	ErrTransport = errors.New("transport error")

	// ErrTokenNotFound is returned when the landing page carries no primary token.
	ErrTokenNotFound = errors.New("token not found")

	// ErrDispatchRejected is returned when the resolver explicitly refuses a submission.
	ErrDispatchRejected = errors.New("resolver rejected submission")

	// ErrLinkNotFound is returned when the resolver response holds no actionable link.
	ErrLinkNotFound = errors.New("no download link in response")

	// ErrHDRejected is returned when the resolver answers the HD request with an anti-automation page.
	ErrHDRejected = errors.New("HD request rejected by resolver")

	// ErrHDNegotiationFailed is returned when the HD response has no recognisable shape.
	ErrHDNegotiationFailed = errors.New("HD negotiation failed")

	// ErrPartialFetch is returned when some slideshow images could not be fetched.
	ErrPartialFetch = errors.New("some assets failed to download")

	// ErrInvalidReference is returned when the media reference is not an http(s) URL.
	ErrInvalidReference = errors.New("invalid media reference")

	// ErrUnknownFlavor is returned when a resolver flavor name is not registered.
	ErrUnknownFlavor = errors.New("unknown resolver flavor")

	// ErrStorageFull is returned when there is insufficient storage space.
	ErrStorageFull = errors.New("insufficient storage space")

	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")
)

// TransportError describes a failed network exchange with the resolver or a CDN.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": unexpected status %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both ErrTransport and the underlying cause.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// NewTransportError creates a TransportError for a failed request.
func NewTransportError(op, url string, err error) *TransportError {
	return &TransportError{Op: op, URL: url, Err: err}
}

// NewStatusError creates a TransportError for a non-2xx response.
func NewStatusError(op, url string, status int) *TransportError {
	return &TransportError{Op: op, URL: url, StatusCode: status}
}

// StageError wraps an error with the pipeline stage that produced it.
type StageError struct {
	Stage     Stage
	Reference MediaReference
	Err       error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stage Stage, ref MediaReference, err error) *StageError {
	return &StageError{
		Stage:     stage,
		Reference: ref,
		Err:       err,
	}
}

// FetchFailure records one asset that could not be fetched.
type FetchFailure struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// PartialFetchError reports the slideshow items that failed while others succeeded.
type PartialFetchError struct {
	Failures []FetchFailure
}

func (e *PartialFetchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("item %d: %s", f.Index, f.Error))
	}
	return fmt.Sprintf("%s (%d failed: %s)", ErrPartialFetch.Error(), len(e.Failures), strings.Join(parts, "; "))
}

func (e *PartialFetchError) Unwrap() error {
	return ErrPartialFetch
}

// IsRetryable reports whether a caller may retry the attempt that produced err.
// Only transport failures qualify; cancellation never does.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransport)
}

// IsHDFailure reports whether err belongs to the non-fatal HD branch.
func IsHDFailure(err error) bool {
	return errors.Is(err, ErrHDRejected) || errors.Is(err, ErrHDNegotiationFailed)
}
