package analysis

import (
	"errors"
	"fmt"
)

// ErrTemplateNotFound is returned when a named instruction template was not
// present in the template directory at startup. It is a configuration bug
// and is raised before any network call.
var ErrTemplateNotFound = errors.New("template not found")

// Kind classifies an analysis-service failure for retry-policy purposes.
type Kind int

const (
	KindOther Kind = iota
	KindTimeout
)

func (k Kind) String() string {
	if k == KindTimeout {
		return "timeout"
	}
	return "other"
}

// CallError wraps a failed analysis-service call with its failure kind.
type CallError struct {
	Kind Kind
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("analysis call failed (%s): %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is an analysis failure caused by a timeout.
func IsTimeout(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Kind == KindTimeout
}
