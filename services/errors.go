package services

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable failure classification surfaced to callers. A kind
// decides whether anything may be retried and who has to act: admins fix
// configuration, users wait out their quota, operators investigate contract
// drift.
type ErrorKind string

const (
	// no active credential or no model selected for the section; admin action
	// required, never retried
	ErrConfigurationMissing ErrorKind = "configuration_missing"
	// user spent the monthly budget; fatal for this request
	ErrQuotaExceeded ErrorKind = "quota_exceeded"
	// the backend executed but declined to produce an image
	ErrProviderRefusal ErrorKind = "provider_refusal"
	// provider response matched none of the known shapes
	ErrUnrecognizedResponseShape ErrorKind = "unrecognized_response_shape"
	// result download retries exhausted
	ErrDownloadExhausted ErrorKind = "download_exhausted"
)

type PipelineError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func NewPipelineError(kind ErrorKind, detail string) *PipelineError {
	return &PipelineError{Kind: kind, Detail: detail}
}

func WrapPipelineError(kind ErrorKind, detail string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Detail: detail, Err: err}
}

// ErrorKindOf extracts the pipeline kind from err, or "" for plain errors.
func ErrorKindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return ErrorKindOf(err) == kind
}
