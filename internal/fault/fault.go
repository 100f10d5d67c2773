// Package fault classifies workflow failures. Every failure an operator can
// see falls into one of three kinds: a missing precondition (nothing was
// sent), a remote failure (the service answered with an error), or a shape
// failure (the answer lacked an expected field).
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the failure class shown to the operator.
type Kind int

const (
	KindUnknown Kind = iota
	KindPrecondition
	KindRemote
	KindShape
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindRemote:
		return "remote"
	case KindShape:
		return "data shape"
	default:
		return "unknown"
	}
}

// ErrPrecondition matches every PreconditionError via errors.Is.
var ErrPrecondition = errors.New("precondition not met")

// PreconditionError reports an action attempted before its inputs exist.
type PreconditionError struct {
	Step    string
	Missing string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Missing)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// Precondition builds a PreconditionError.
func Precondition(step, missing string) error {
	return &PreconditionError{Step: step, Missing: missing}
}

// RemoteError carries the status code and raw body of a failed exchange.
// StatusCode is 0 when the request never produced a response.
type RemoteError struct {
	Service    string
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Service, e.Operation)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// ShapeError reports a response that parsed but lacked an expected field.
type ShapeError struct {
	Service string
	Field   string
	Detail  string
	Body    string
}

func (e *ShapeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: response missing %s", e.Service, e.Field)
	}
	return fmt.Sprintf("%s: response missing %s: %s", e.Service, e.Field, e.Detail)
}

// Classify returns the Kind of err, looking through wrapping.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pre *PreconditionError
	if errors.As(err, &pre) {
		return KindPrecondition
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return KindRemote
	}
	var shape *ShapeError
	if errors.As(err, &shape) {
		return KindShape
	}
	return KindUnknown
}

// Body returns the raw response body attached to err, if any.
func Body(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Body
	}
	var shape *ShapeError
	if errors.As(err, &shape) {
		return shape.Body
	}
	return ""
}

// StatusCode returns the HTTP status attached to err, if any.
func StatusCode(err error) (int, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.StatusCode != 0 {
		return remote.StatusCode, true
	}
	return 0, false
}
