package orchestrator

import (
	"errors"
	"fmt"

	"github.com/dylan-green/promise-idb/lib/platform"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess             RetCode = iota // 0: Call completed successfully.
	RetCPlatformUnavailable                // 1: The host environment lacks the store capability.
	RetCMissingName                        // 2: Required store name omitted.
	RetCNoConnection                       // 3: The store could not be opened or resolved.
	RetCCollectionNotFound                 // 4: Dispatch target collection absent.
	RetCOperationError                     // 5: The underlying request failed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCPlatformUnavailable:
		return "PlatformUnavailable"
	case RetCMissingName:
		return "MissingName"
	case RetCNoConnection:
		return "NoConnection"
	case RetCCollectionNotFound:
		return "CollectionNotFound"
	case RetCOperationError:
		return "OperationError"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally the underlying cause.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message
	Cause error   // The underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("OrchestratorError (code %s): %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("OrchestratorError (code %s): %s", e.Code, e.Msg)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// WrapError creates a new Error carrying an underlying cause.
func WrapError(code RetCode, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// CodeOf extracts the return code from an error, RetCOperationError if the
// error is not an *Error.
func CodeOf(err error) RetCode {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code
	}
	return RetCOperationError
}

// fromPlatform maps an engine error onto the orchestrator taxonomy. Every
// platform failure is surfaced verbatim as the cause.
func fromPlatform(err error) *Error {
	switch {
	case errors.Is(err, platform.ErrCollectionNotFound):
		return WrapError(RetCCollectionNotFound, "collection not found", err)
	case errors.Is(err, platform.ErrEnvClosed):
		return WrapError(RetCPlatformUnavailable, "environment closed", err)
	default:
		return WrapError(RetCOperationError, "operation failed", err)
	}
}
