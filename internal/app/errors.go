package app

import (
	"errors"

	"github.com/scriptducks/hashes-gui/internal/ports"
)

var ErrNotFound = ports.ErrNotFound

// PersistenceError is returned when preferences could not be saved.
type PersistenceError = ports.PersistenceError

var (
	ErrAPIKeyRequired = errors.New("an API key is required for this action")
	ErrNoHashes       = errors.New("please provide at least one hash to search")
	ErrTooManyHashes  = errors.New("the API allows up to 250 hashes per lookup request")
	ErrNoJobsSelected = errors.New("no jobs were selected for download")
)

// APIError reports a failed hashes.com call. Message is safe to show to the
// user as is.
type APIError struct {
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *APIError) Unwrap() error { return e.Err }

// CodedError lets executors attach a stable code to a task failure, persisted
// in Task.ErrorCode.
//
// Codes: invalid_params, api_key_required, api_error, io_error.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }
