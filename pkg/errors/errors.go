package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// New returns an error with a recorded stack.
func New(msg string) error {
	return pkgerrors.New(msg)
}

// Errorf formats an error with a recorded stack.
func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

// Wrap annotates err with msg. Returns nil when err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}

// Wrapf annotates err with a formatted message. Returns nil when err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}

// WithStack records the caller stack on err. Returns nil when err is nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// ErrorfAndReport formats an error and sends it to the registered reporters.
func ErrorfAndReport(format string, args ...interface{}) error {
	err := pkgerrors.Errorf(format, args...)
	report(err)
	return err
}

// WrapAndReport wraps err and sends it to the registered reporters.
// Returns nil when err is nil so callers can wrap unconditionally.
func WrapAndReport(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := pkgerrors.Wrap(err, msg)
	report(wrapped)
	return wrapped
}

type stack []uintptr

const maxStackDepth = 32

// callers skips runtime.Callers, callers itself and the reporter method.
func callers() stack {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

// fullStack renders "function file:line" for each frame, skipping runtime frames.
func (s stack) fullStack() []string {
	frames := runtime.CallersFrames(s)
	var lines []string
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			lines = append(lines, fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return lines
}

// reportSite picks the frame used as rate limit key: the first frame outside
// this package, i.e. the code that created the reported error.
func reportSite(stacks []string) string {
	for _, s := range stacks {
		if !strings.Contains(s, "wallet-verify/pkg/errors.") {
			return s
		}
	}
	if len(stacks) > 0 {
		return stacks[len(stacks)-1]
	}
	return ""
}

// WrapfAndReport is WrapAndReport with a formatted message.
func WrapfAndReport(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	wrapped := pkgerrors.Wrapf(err, format, args...)
	report(wrapped)
	return wrapped
}
