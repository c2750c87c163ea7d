package ports

import "errors"

var ErrNotFound = errors.New("not found")

// PersistenceError reports that preferences could not be written to Path.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return "cannot save preferences to " + e.Path
	}
	return "cannot save preferences to " + e.Path + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }
