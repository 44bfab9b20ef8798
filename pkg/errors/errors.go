// Package errors provides typed errors for histfill.
//
// Every failure surfaced by the library is an *Error carrying an ErrorType,
// a message, the wrapped cause and free-form details such as the histogram
// or axis involved. The type of the innermost cause is kept when an error is
// wrapped without a new type, so callers can branch with IsType no matter
// how many layers added context.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType classifies a failure
type ErrorType string

const (
	ErrorTypeInternal ErrorType = "internal"
	ErrorTypeConfig   ErrorType = "config"
	// ErrorTypeAxis marks invalid axis definitions or lookups
	ErrorTypeAxis ErrorType = "axis"
	// ErrorTypeShape marks fill arrays whose lengths or nesting disagree
	ErrorTypeShape ErrorType = "shape"
	// ErrorTypeCategory marks values not present on a category axis
	ErrorTypeCategory ErrorType = "category"
	// ErrorTypeState marks calls made in the wrong lifecycle order
	ErrorTypeState ErrorType = "state"
	// ErrorTypeData marks unsupported or malformed column data
	ErrorTypeData    ErrorType = "data"
	ErrorTypeIO      ErrorType = "io"
	ErrorTypeStorage ErrorType = "storage"
)

const maxFrames = 32

// Error is a typed error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is one frame of the stack captured when an error is created
type StackFrame struct {
	Function string
	File     string
	Line     int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetail attaches key=value to the error and returns it
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, 2)
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given type
func New(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message, Stack: callers(3)}
}

// Newf creates an error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errType, Message: fmt.Sprintf(format, args...), Stack: callers(3)}
}

// Wrap adds context to err. An empty errType inherits the type of the
// nearest *Error in the chain, or ErrorTypeInternal for foreign errors.
// Wrap returns nil for a nil err.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	wrapped := &Error{Type: errType, Message: message, Cause: err}

	var inner *Error
	if errors.As(err, &inner) {
		wrapped.Stack = inner.Stack
		if errType == "" {
			wrapped.Type = inner.Type
		}
		return wrapped
	}
	if errType == "" {
		wrapped.Type = ErrorTypeInternal
	}
	wrapped.Stack = callers(3)
	return wrapped
}

// IsType reports whether any *Error in the chain of err has type errType
func IsType(err error, errType ErrorType) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// TypeOf returns the type of the outermost *Error in the chain, or
// ErrorTypeInternal for foreign errors
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// Details merges the details of every *Error in the chain of err. Outer
// errors win when keys collide.
func Details(err error) map[string]interface{} {
	var out map[string]interface{}
	var e *Error
	for errors.As(err, &e) {
		for k, v := range e.Details {
			if out == nil {
				out = make(map[string]interface{})
			}
			if _, seen := out[k]; !seen {
				out[k] = v
			}
		}
		err = e.Cause
	}
	return out
}

func callers(skip int) []StackFrame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])

	stack := make([]StackFrame, 0, n)
	for {
		f, more := frames.Next()
		stack = append(stack, StackFrame{Function: f.Function, File: f.File, Line: f.Line})
		if !more {
			break
		}
	}
	return stack
}
