// Package pipeline defines the failure taxonomy shared by the source
// adapters and the summarization worker.
package pipeline

import (
	"errors"
	"fmt"
)

// Class partitions per-candidate failures so that routing decisions never
// depend on error message text.
type Class int

const (
	// ClassTransient covers timeouts, network errors and retryable HTTP
	// statuses. The candidate is skipped without any cache mutation.
	ClassTransient Class = iota
	// ClassUnavailable covers permanently missing content: captions
	// disabled, no English transcript, parse failures, hard 4xx statuses.
	// The candidate is recorded in the failed cache and never retried.
	ClassUnavailable
	// ClassRateLimited marks throttling that should back off but not
	// terminate discovery.
	ClassRateLimited
	// ClassQuota marks exhausted API quota. Terminal for the whole
	// process: discovery stops and the queue is drained before exit.
	ClassQuota
)

// String returns the class label used in logs.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassUnavailable:
		return "unavailable"
	case ClassRateLimited:
		return "rate_limited"
	case ClassQuota:
		return "quota"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps a cause with its failure class.
type ClassifiedError struct {
	Class Class
	Err   error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classify wraps err with the given class. A nil err returns nil.
func Classify(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err}
}

// Classifyf wraps a formatted error with the given class.
func Classifyf(class Class, format string, args ...any) error {
	return &ClassifiedError{Class: class, Err: fmt.Errorf(format, args...)}
}

// ClassOf extracts the class of err. Unclassified errors are treated as
// transient so an unknown failure never poisons the failed cache.
func ClassOf(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassTransient
}

// IsTerminal reports whether err must halt the whole discovery loop.
func IsTerminal(err error) bool {
	return err != nil && ClassOf(err) == ClassQuota
}

// IsPermanent reports whether err should land the candidate in the
// failed cache.
func IsPermanent(err error) bool {
	return err != nil && ClassOf(err) == ClassUnavailable
}
