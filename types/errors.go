package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of a distributed run
type ErrorKind uint8

const (
	ConfigurationError ErrorKind = iota
	CommunicationError
	ConsistencyError
)

func (k ErrorKind) String() string {
	return [...]string{"configuration", "communication", "consistency"}[k]
}

// NoStep marks errors raised outside of the evolve loop
const NoStep = -1

// RunError carries the process and the step that detected a failure. In an
// SPMD run every process looks the same from the outside, so the rank and
// step are the only way to tell which one stalled or failed.
type RunError struct {
	Kind ErrorKind
	Rank int // -1 when raised before a process context exists
	Step int // NoStep outside the evolve loop
	Err  error
}

func (e *RunError) Error() string {
	var where string
	switch {
	case e.Rank >= 0 && e.Step != NoStep:
		where = fmt.Sprintf("process %d, step %d", e.Rank, e.Step)
	case e.Rank >= 0:
		where = fmt.Sprintf("process %d", e.Rank)
	case e.Step != NoStep:
		where = fmt.Sprintf("step %d", e.Step)
	}
	if where == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error [%s]: %v", e.Kind, where, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// At returns a copy of the error located at rank and step, keeping any
// location that was already set.
func (e *RunError) At(rank, step int) *RunError {
	out := *e
	if out.Rank < 0 {
		out.Rank = rank
	}
	if out.Step == NoStep {
		out.Step = step
	}
	return &out
}

func newRunError(kind ErrorKind, format string, args ...interface{}) *RunError {
	return &RunError{
		Kind: kind,
		Rank: -1,
		Step: NoStep,
		Err:  fmt.Errorf(format, args...),
	}
}

func ConfigErrorf(format string, args ...interface{}) error {
	return newRunError(ConfigurationError, format, args...)
}

func CommErrorf(format string, args ...interface{}) error {
	return newRunError(CommunicationError, format, args...)
}

func ConsistencyErrorf(format string, args ...interface{}) error {
	return newRunError(ConsistencyError, format, args...)
}

// IsKind reports whether any RunError in err's chain has the given kind
func IsKind(err error, kind ErrorKind) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// Locate stamps rank and step onto err. Plain errors become communication
// errors, since those are what the transport layers return unclassified.
func Locate(err error, rank, step int) error {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RunError); ok {
		return re.At(rank, step)
	}
	var re *RunError
	if errors.As(err, &re) {
		if re.Rank >= 0 {
			return err
		}
		return &RunError{Kind: re.Kind, Rank: rank, Step: step, Err: err}
	}
	return &RunError{Kind: CommunicationError, Rank: rank, Step: step, Err: err}
}
