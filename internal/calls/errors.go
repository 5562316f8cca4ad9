package calls

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrJoinTimeout       = errors.New("calls: join timeout")
	ErrSessionActive     = errors.New("calls: a live session already exists for this identity")
	ErrInvalidTransition = errors.New("calls: invalid status transition")
	ErrLeaseLost         = errors.New("calls: session lease expired or taken over")
)

// ValidationError reports malformed input. The call is never submitted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "calls: " + e.Msg }

// ProviderError wraps a control-plane rejection. Msg is the provider's own
// message.
type ProviderError struct {
	Op  string
	Msg string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("calls: %s: %s", e.Op, e.Msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type JoinTimeoutError struct {
	RoomID   string
	Identity string
	Timeout  time.Duration
}

func (e *JoinTimeoutError) Error() string {
	return fmt.Sprintf("calls: %s did not join %s within %s", e.Identity, e.RoomID, e.Timeout)
}

func (e *JoinTimeoutError) Unwrap() error { return ErrJoinTimeout }
