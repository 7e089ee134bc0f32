// Package adaptererrors implements the error taxonomy from spec.md §7:
// ProtocolError, ConfigError, SpawnError, MIError, SessionEnded, and
// StepTimeoutLate. Each is a distinct type so callers can use errors.As to
// decide how to surface a failure (reject a request, fail a session, or
// emit a console output event) without string-matching messages.
//
// Grounded on the throwmetoo/GoGDBLLM `appErrors` sibling package: a small
// set of sentinel/wrapped error types with an `errors.Wrap`-style helper,
// adapted here to the six categories spec.md names instead of that
// project's single flat error list.
package adaptererrors

import "fmt"

// ProtocolError means the front-end sent a malformed or unsupported
// request; the handler must reject it with success=false rather than
// touching GDB state.
type ProtocolError struct {
	Request string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s: %s", e.Request, e.Reason)
}

// ConfigError means launch/attach arguments are internally inconsistent
// (e.g. auxiliaryGdb with gdbNonStop). Message always starts with one of
// the fixed sentinels spec.md §7 lists, so front-ends that pattern-match
// on adapter error text keep working.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

func NewAuxiliaryRequiresAsyncError() *ConfigError {
	return &ConfigError{Message: "AuxiliaryGdb mode requires gdbAsync to be enabled"}
}

func NewAuxiliaryIncompatibleWithNonStopError() *ConfigError {
	return &ConfigError{Message: "Cannot use auxiliaryGdb mode with gdbNonStop mode"}
}

func NewCustomResetRequiresAsyncError() *ConfigError {
	return &ConfigError{Message: "Setting 'customResetCommands' requires 'gdbAsync' to be active"}
}

// SpawnError means a child process (GDB or the target server) could not be
// started, or exited before becoming ready. Stderr captured up to the
// failure point is preserved for display.
type SpawnError struct {
	Program string
	Stderr  string
	Cause   error
}

func (e *SpawnError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("failed to start %s: %v\n%s", e.Program, e.Cause, e.Stderr)
	}
	return fmt.Sprintf("failed to start %s: %v", e.Program, e.Cause)
}

func (e *SpawnError) Unwrap() error { return e.Cause }

// MIError wraps a GDB `^error` result. It is non-fatal to the session: one
// request fails, the adapter keeps running.
type MIError struct {
	Command string
	Message string
	Code    string
}

func (e *MIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Command, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// SessionEnded means GDB (or, transitively, the target server) died; every
// pending command future is failed with this error and a terminated event
// follows.
type SessionEnded struct {
	Reason string
}

func (e *SessionEnded) Error() string { return "session ended: " + e.Reason }

// StepTimeoutLate marks an MI error that arrived after the stepping
// response timer (spec.md §4.4) had already resolved the front-end
// response. It must be surfaced as an output event, never as a second
// response.
type StepTimeoutLate struct {
	Request string // the DAP command name, e.g. "stepIn"
	Cause   error
}

func (e *StepTimeoutLate) Error() string {
	return fmt.Sprintf("Error occurred during the %sRequest: %v", e.Request, e.Cause)
}

func (e *StepTimeoutLate) Unwrap() error { return e.Cause }

// Wrap attaches context to err without discarding its type for errors.As,
// mirroring the GoGDBLLM appErrors.Wrap helper this package is grounded on.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
