// Error codes for the CNC control core
//
// The core contract is boolean (operations report success or failure and
// callers must check it). Below that contract, storage transports, the
// chip protocol, the serial port and the config loader return *Error
// values so the reason for a false return can be logged.
//
// Copyright (C) 2026  CNCETI contributors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// G-code errors
	ErrGCodeParse       ErrorCode = "GCODE_PARSE"
	ErrGCodeUnsupported ErrorCode = "GCODE_UNSUPPORTED"

	// Storage errors
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrStorageNotFound    ErrorCode = "STORAGE_NOT_FOUND"
	ErrStorageOpen        ErrorCode = "STORAGE_OPEN"
	ErrStorageRead        ErrorCode = "STORAGE_READ"
	ErrStorageNotOpen     ErrorCode = "STORAGE_NOT_OPEN"

	// Transport errors (UART link to the mass-storage chip)
	ErrTransportTimeout  ErrorCode = "TRANSPORT_TIMEOUT"
	ErrTransportIO       ErrorCode = "TRANSPORT_IO"
	ErrTransportProtocol ErrorCode = "TRANSPORT_PROTOCOL"

	// Motion errors
	ErrMotionBusy ErrorCode = "MOTION_BUSY"

	// Runtime errors
	ErrRuntime     ErrorCode = "RUNTIME"
	ErrRuntimeInit ErrorCode = "RUNTIME_INIT"
)

// Error is the error type shared by the core's infrastructure packages.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Device names the storage device or port involved, if any
	Device string

	// File is the program or config file involved, if any
	File string

	// Err wraps the underlying error
	Err error

	// Context carries extra key/value detail for logging
	Context map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Device != "" {
		msg += " (device " + e.Device + ")"
	}
	if e.File != "" {
		msg += " (file " + e.File + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// SetDevice sets the device name
func (e *Error) SetDevice(device string) *Error {
	e.Device = device
	return e
}

// SetFile sets the file name
func (e *Error) SetFile(file string) *Error {
	e.File = file
	return e
}

// SetContext adds additional context
func (e *Error) SetContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Config errors

// ConfigOptionError creates an error for a missing or invalid config option
func ConfigOptionError(section, option, reason string) *Error {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason))
}

// ConfigValidationError creates an error for a cross-option validation failure
func ConfigValidationError(section, reason string) *Error {
	return New(ErrConfigValidation, fmt.Sprintf("section '%s': %s", section, reason))
}

// G-code errors

// GCodeParseError creates an error for a line that could not be interpreted
func GCodeParseError(line, reason string) *Error {
	return New(ErrGCodeParse, fmt.Sprintf("failed to parse G-code %q: %s", line, reason))
}

// GCodeUnsupportedError creates an error for a recognized but unsupported opcode
func GCodeUnsupportedError(opcode int) *Error {
	return New(ErrGCodeUnsupported, fmt.Sprintf("unsupported G-code: G%d", opcode))
}

// Storage errors

// StorageUnavailableError reports that a device did not respond
func StorageUnavailableError(device, reason string) *Error {
	return New(ErrStorageUnavailable, reason).SetDevice(device)
}

// StorageNotFoundError reports a missing file or directory
func StorageNotFoundError(device, name string) *Error {
	return New(ErrStorageNotFound, "no such file or directory").SetDevice(device).SetFile(name)
}

// StorageOpenError reports a failure opening a program file
func StorageOpenError(device, name string, err error) *Error {
	return Wrap(err, ErrStorageOpen, "open failed").SetDevice(device).SetFile(name)
}

// StorageReadError reports a failure while reading an open file
func StorageReadError(device, name string, err error) *Error {
	return Wrap(err, ErrStorageRead, "read failed").SetDevice(device).SetFile(name)
}

// StorageNotOpenError reports a read or query with no open file
func StorageNotOpenError(device string) *Error {
	return New(ErrStorageNotOpen, "no file open").SetDevice(device)
}

// Transport errors

// TransportTimeoutError reports an exchange that exceeded its deadline
func TransportTimeoutError(operation string) *Error {
	return New(ErrTransportTimeout, operation+" timed out")
}

// TransportIOError wraps a read/write failure on the link
func TransportIOError(operation string, err error) *Error {
	return Wrap(err, ErrTransportIO, operation+" failed")
}

// TransportProtocolError reports an unexpected reply from the chip
func TransportProtocolError(operation string, got, want byte) *Error {
	return New(ErrTransportProtocol, fmt.Sprintf("%s: unexpected status 0x%02X (want 0x%02X)", operation, got, want)).
		SetContext("status", got)
}

// Runtime errors

// RuntimeError creates a general runtime error
func RuntimeError(message string) *Error {
	return New(ErrRuntime, message)
}

// RuntimeErrorInit creates an error for an initialization failure
func RuntimeErrorInit(component, reason string) *Error {
	return New(ErrRuntimeInit, fmt.Sprintf("failed to initialize %s: %s", component, reason))
}

// RecoverPanic converts a value returned by recover() into an *Error.
// A nil value yields nil.
func RecoverPanic(r interface{}) *Error {
	if r == nil {
		return nil
	}
	switch x := r.(type) {
	case runtime.Error:
		return Wrap(x, ErrRuntime, "runtime panic")
	case error:
		return Wrap(x, ErrRuntime, "panic")
	default:
		return RuntimeError(fmt.Sprintf("panic: %v", x))
	}
}

// Is reports whether any error in err's chain is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Code == code {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsStorage checks if error is a storage error
func IsStorage(err error) bool {
	switch CodeOf(err) {
	case ErrStorageUnavailable, ErrStorageNotFound, ErrStorageOpen, ErrStorageRead, ErrStorageNotOpen:
		return true
	}
	return false
}

// IsTransport checks if error is a transport error
func IsTransport(err error) bool {
	switch CodeOf(err) {
	case ErrTransportTimeout, ErrTransportIO, ErrTransportProtocol:
		return true
	}
	return false
}
