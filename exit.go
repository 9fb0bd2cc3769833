package main

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// Constants representing the predefined exit codes used by mariamove. A few
// of these are loosely adapted from BSD's `man sysexits`.
const (
	CodeSuccess      = 0
	CodePartialError = 1
	CodeFatalError   = 2
	CodeBadConfig    = 78
)

// ExitCoder is an interface for error values that also expose a specific
// process exit code.
type ExitCoder interface {
	error
	ExitCode() int
}

// ExitValue represents an exit code for an operation. It satisfies the Error
// interface, but does not necessarily indicate a "fatal error" condition;
// exit code 1 is used for partial failures and interrupts. By convention,
// fatal errors are indicated by a code > 1. A nil *ExitValue always
// represents success / exit code 0.
type ExitValue struct {
	Code int
	err  error
}

// Error returns an error string, satisfying the Go builtin error interface.
func (ev *ExitValue) Error() string {
	if ev == nil {
		return ""
	}
	return ev.err.Error()
}

// Unwrap returns the wrapped error inside of the ExitValue.
func (ev *ExitValue) Unwrap() error {
	return ev.err
}

// ExitCode returns ev's Code, satisfying the ExitCoder interface.
func (ev *ExitValue) ExitCode() int {
	if ev == nil {
		return CodeSuccess
	}
	return ev.Code
}

// NewExitValue is a constructor for ExitValue.
func NewExitValue(code int, format string, a ...interface{}) *ExitValue {
	return &ExitValue{
		Code: code,
		err:  fmt.Errorf(format, a...),
	}
}

// WrapExitCode attaches a numeric exit code to an existing error, returning
// a new ExitValue which wraps err.
func WrapExitCode(code int, err error) *ExitValue {
	return &ExitValue{
		Code: code,
		err:  err,
	}
}

// ExitCode returns an exit code corresponding to the supplied error. If err
// is nil, code 0 (success) is returned. If err is an ExitCoder (or wraps
// one), its ExitCode is returned. Otherwise, code 2 (fatal error) is
// returned.
func ExitCode(err error) int {
	if err == nil {
		return CodeSuccess
	}
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return CodeFatalError
}

// Exit terminates the process with a code corresponding to err, logging the
// error's message first if it has one.
func Exit(err error) {
	code := ExitCode(err)
	if err != nil && err.Error() != "" {
		switch {
		case code >= CodeFatalError:
			log.Error(err.Error())
		case code > CodeSuccess:
			log.Warn(err.Error())
		default:
			log.Info(err.Error())
		}
	}
	os.Exit(code)
}
