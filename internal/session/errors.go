package session

import (
	"errors"
	"fmt"
)

// ErrNotReady is matched by every NotReadyError.
var ErrNotReady = errors.New("session: not ready")

// NotReadyError rejects audio submitted outside the Ready state.
type NotReadyError struct {
	State State
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("session: not ready (state %s)", e.State)
}

// Is makes errors.Is(err, ErrNotReady) hold.
func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

// Kind names the error on the wire.
func (e *NotReadyError) Kind() string { return "not_ready" }

// DecodeError reports a backend failure while processing one chunk. The
// session keeps running unless Err wraps engine.ErrResourceFault.
type DecodeError struct {
	Sequence uint64
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("session: decode chunk %d: %v", e.Sequence, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Kind names the error on the wire.
func (e *DecodeError) Kind() string { return "decode" }
