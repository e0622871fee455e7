package models

import (
	"errors"
	"fmt"
)

// Backend failure classes. Transient and quota failures are sentinel
// errors wrapped with context; refusal and decode failures carry payloads
// and are matched with errors.As.
var (
	ErrTransient     = errors.New("service temporarily unavailable")
	ErrQuotaExceeded = errors.New("quota or rate limit exceeded")
)

// RefusalError is a content-policy decline: the backend returned
// explanatory text instead of media. It is conversational, not a fault,
// and is surfaced with distinct styling from true errors.
type RefusalError struct {
	Explanation string
}

func (e *RefusalError) Error() string {
	return "model declined request: " + e.Explanation
}

// IsRefusal reports whether err is (or wraps) a content-policy refusal.
func IsRefusal(err error) bool {
	var r *RefusalError
	return errors.As(err, &r)
}

// AsRefusal unwraps the refusal payload, if any.
func AsRefusal(err error) (*RefusalError, bool) {
	var r *RefusalError
	ok := errors.As(err, &r)
	return r, ok
}

// DecodeError means generated media was produced but its pixel dimensions
// could not be decoded. The commit still proceeds; only dimension
// metadata is degraded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image dimensions: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// FailureClass buckets a backend error for display routing.
type FailureClass string

const (
	FailureRefusal      FailureClass = "refusal"
	FailureTransient    FailureClass = "transient"
	FailureQuota        FailureClass = "quota"
	FailureDecode       FailureClass = "decode"
	FailureUnclassified FailureClass = "unclassified"
)

// Classify maps an error from the generation backend onto its failure
// class. Unknown errors are unclassified rather than dropped.
func Classify(err error) FailureClass {
	switch {
	case IsRefusal(err):
		return FailureRefusal
	case errors.Is(err, ErrQuotaExceeded):
		return FailureQuota
	case errors.Is(err, ErrTransient):
		return FailureTransient
	default:
		var d *DecodeError
		if errors.As(err, &d) {
			return FailureDecode
		}
		return FailureUnclassified
	}
}
