package domain

import (
	"errors"
	"strings"
)

// ErrorKind classifies failures surfaced to the presentation layer.
type ErrorKind string

const (
	ErrorKindPermission  ErrorKind = "permission"
	ErrorKindTransport   ErrorKind = "transport"
	ErrorKindEmptyResult ErrorKind = "empty_result"
	ErrorKindPlayback    ErrorKind = "playback"
	ErrorKindState       ErrorKind = "state"
	ErrorKindCapture     ErrorKind = "capture"
	ErrorKindStartup     ErrorKind = "startup"
)

// CaptureFailure narrows capture errors to what the user can act on.
type CaptureFailure string

const (
	CaptureUnknown          CaptureFailure = ""
	CapturePermissionDenied CaptureFailure = "permission_denied"
	CaptureNoDevice         CaptureFailure = "no_device"
	CaptureDeviceBusy       CaptureFailure = "device_busy"
)

// Error is the typed error used across components.
type Error struct {
	Kind    ErrorKind
	Capture CaptureFailure
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error with a message.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// ErrorInfo is the presentation-facing form of the current error.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// InfoFromError converts err into ErrorInfo. Errors without a kind are reported as transport.
func InfoFromError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}
	var typed *Error
	if errors.As(err, &typed) {
		message := typed.Message
		if message == "" {
			message = typed.Error()
		}
		return ErrorInfo{Kind: typed.Kind, Message: message}
	}
	return ErrorInfo{Kind: ErrorKindTransport, Message: err.Error()}
}

// ClassifyCapture maps a device error message onto a CaptureFailure.
func ClassifyCapture(err error) CaptureFailure {
	if err == nil {
		return CaptureUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "access denied"), strings.Contains(msg, "not allowed"):
		return CapturePermissionDenied
	case strings.Contains(msg, "no device"), strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found"):
		return CaptureNoDevice
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return CaptureDeviceBusy
	default:
		return CaptureUnknown
	}
}

// CaptureError wraps a device error with its classification.
func CaptureError(message string, err error) *Error {
	failure := ClassifyCapture(err)
	kind := ErrorKindCapture
	if failure == CapturePermissionDenied {
		kind = ErrorKindPermission
	}
	return &Error{Kind: kind, Capture: failure, Message: message, Err: err}
}
