package model

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeInternal           Code = "INTERNAL"
)

// Error is a domain error surfaced to callers of the controller.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code and message, so sentinels survive wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error         { return New(CodeInvalidArgument, msg) }
func NotFound(msg string) error           { return New(CodeNotFound, msg) }
func FailedPrecondition(msg string) error { return New(CodeFailedPrecondition, msg) }
func Internal(msg string, cause error) error {
	return Wrap(CodeInternal, msg, cause)
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

var (
	ErrInvalidType           = InvalidArg("message type must be FINAL_WORD or TIME_CAPSULE")
	ErrDelayRequired         = InvalidArg("delay must be set for FINAL_WORD messages")
	ErrDelayNotAllowed       = InvalidArg("delay must not be set for TIME_CAPSULE messages")
	ErrNegativeDelay         = InvalidArg("delay must not be negative")
	ErrScheduledAtRequired   = InvalidArg("scheduled at must be set for TIME_CAPSULE messages")
	ErrScheduledAtNotAllowed = InvalidArg("scheduled at must not be set for FINAL_WORD messages")
	ErrScheduledAtInPast     = InvalidArg("scheduled at cannot be in the past")
	ErrNoRecipients          = InvalidArg("at least one recipient is required")
	ErrInvalidRecipient      = InvalidArg("recipient is not a valid email address")
	ErrSubjectRequired       = InvalidArg("subject is required")
	ErrSubjectTooLong        = InvalidArg("subject must be at most 255 characters")
	ErrNegativeInterval      = InvalidArg("interval must not be negative")
	ErrEmailRequired         = InvalidArg("email is required")

	ErrMessageNotFound = NotFound("message not found")
	ErrUserNotFound    = NotFound("user not found")

	ErrNotEditable   = FailedPrecondition("schedule can only be changed while the message is scheduled")
	ErrTypeImmutable = FailedPrecondition("message type cannot be changed")
	ErrNotResendable = FailedPrecondition("only delivered or failed messages can be resent")
)
