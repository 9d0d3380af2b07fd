package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the step a run failed in.
type Stage string

const (
	StageAcquire    Stage = "acquire"
	StageRecognize  Stage = "recognize"
	StageUnexpected Stage = "unexpected"
)

// Error is the only error type Process returns.
type Error struct {
	Stage           Stage
	AlreadyNotified bool // the user was already told; callers should not reply with their own error text
	Err             error
}

func (e *Error) Error() string {
	return fmt.Sprintf("speech pipeline: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// AlreadyNotified reports whether err carries a delivered user notification.
func AlreadyNotified(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.AlreadyNotified
}
