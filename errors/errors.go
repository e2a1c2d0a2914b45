// Package errors provides the error types shared by the converter pipeline
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUnresolvedVR    = errors.New("dicomizer: value representation not resolved")
	ErrInvalidValue    = errors.New("dicomizer: invalid attribute value")
	ErrMetadataFetch   = errors.New("dicomizer: study metadata fetch failed")
	ErrFrameFetch      = errors.New("dicomizer: frame fetch failed")
	ErrFrameDecode     = errors.New("dicomizer: frame decode failed")
	ErrMissingArgument = errors.New("dicomizer: missing required argument")
	ErrPoolStopped     = errors.New("dicomizer: fetch pool stopped")
	ErrNotFound        = errors.New("dicomizer: not found")
)

// SkipReason classifies why an attribute was left out of a built dataset
type SkipReason int

const (
	SkipUnresolvedVR SkipReason = iota
	SkipPrivateCreator
	SkipInvalidValue
	SkipFileMetaGroup
	SkipPrivateGroup
)

func (r SkipReason) String() string {
	switch r {
	case SkipUnresolvedVR:
		return "unresolved-vr"
	case SkipPrivateCreator:
		return "private-creator-id"
	case SkipInvalidValue:
		return "invalid-value"
	case SkipFileMetaGroup:
		return "file-meta-group"
	case SkipPrivateGroup:
		return "private-group"
	default:
		return "unknown"
	}
}

// SkipError records one attribute that was dropped while building a dataset.
// Path is the dotted location of the key, e.g. "ReferencedImageSequence[0].ReferencedSOPInstanceUID".
type SkipError struct {
	Path   string
	Reason SkipReason
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("attribute %s skipped: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("attribute %s skipped: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

// NewSkipError creates a new skip error
func NewSkipError(path string, reason SkipReason, err error) *SkipError {
	return &SkipError{
		Path:   path,
		Reason: reason,
		Err:    err,
	}
}

// FetchError represents a failure talking to the image store
type FetchError struct {
	Op  string
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("image store error during %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new fetch error
func NewFetchError(op, id string, err error) *FetchError {
	return &FetchError{
		Op:  op,
		ID:  id,
		Err: err,
	}
}

// TimeoutError represents a timeout error
type TimeoutError struct {
	Operation string
	Duration  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s exceeded %s", e.Operation, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(operation, duration string) *TimeoutError {
	return &TimeoutError{
		Operation: operation,
		Duration:  duration,
	}
}

// ArgumentError reports an invalid or missing startup argument
type ArgumentError struct {
	Name string
	Msg  string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %s: %s", e.Name, e.Msg)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// NewArgumentError creates a new argument error
func NewArgumentError(name, msg string, err error) *ArgumentError {
	return &ArgumentError{
		Name: name,
		Msg:  msg,
		Err:  err,
	}
}
