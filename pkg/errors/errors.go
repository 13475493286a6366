// Error codes shared by the MMU2 host packages
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode is a stable, machine-readable error class. The codes double as
// metric labels and JSON-RPC error data.
type ErrorCode string

const (
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Refusals: the MMU was not asked to do anything.
	ErrStopped     ErrorCode = "MMU_STOPPED"
	ErrNotReady    ErrorCode = "MMU_NOT_READY"
	ErrBusy        ErrorCode = "MMU_BUSY"
	ErrInvalidSlot ErrorCode = "INVALID_SLOT"
	ErrColdExtrude ErrorCode = "EXTRUDER_COLD"
	ErrInvalidArg  ErrorCode = "INVALID_PARAM"

	ErrOperation ErrorCode = "OPERATION_FAILED"
	ErrHardware  ErrorCode = "HARDWARE"
	ErrRuntime   ErrorCode = "RUNTIME"
)

var (
	configCodes    = []ErrorCode{ErrConfigSection, ErrConfigOption, ErrConfigValidation, ErrConfigType}
	rejectionCodes = []ErrorCode{ErrStopped, ErrNotReady, ErrBusy, ErrInvalidSlot, ErrColdExtrude, ErrInvalidArg}
)

// HostError carries a code and where it happened: the MMU command or config
// section in Op, and the option or parameter in Key.
type HostError struct {
	Code ErrorCode
	Op   string
	Key  string
	Msg  string
	// Pos is "file:line" for config syntax errors.
	Pos string
	Err error
}

func (e *HostError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Code))
	if e.Op != "" {
		b.WriteString(":" + e.Op)
		if e.Key != "" {
			b.WriteString("." + e.Key)
		}
	}
	b.WriteString("] ")
	if e.Pos != "" {
		b.WriteString(e.Pos + ": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *HostError) Unwrap() error { return e.Err }

// SetSection records the command or config section.
func (e *HostError) SetSection(op string) *HostError {
	e.Op = op
	return e
}

// SetOption records the config option or command parameter.
func (e *HostError) SetOption(key string) *HostError {
	e.Key = key
	return e
}

// At records a position in a config file.
func (e *HostError) At(file string, line int) *HostError {
	e.Pos = fmt.Sprintf("%s:%d", file, line)
	return e
}

func New(code ErrorCode, msg string) *HostError {
	return &HostError{Code: code, Msg: msg}
}

func Wrap(err error, code ErrorCode, msg string) *HostError {
	return &HostError{Code: code, Msg: msg, Err: err}
}

func ConfigSectionError(section string) *HostError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).SetSection(section)
}

func ConfigOptionError(section, option string) *HostError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section)).
		SetSection(section).SetOption(option)
}

func ConfigValidationError(section, option, reason string) *HostError {
	return New(ErrConfigValidation, reason).SetSection(section).SetOption(option)
}

func ConfigTypeError(section, option, value, typ string, err error) *HostError {
	return Wrap(err, ErrConfigType, fmt.Sprintf("failed to parse '%s' as %s", value, typ)).
		SetSection(section).SetOption(option)
}

// StoppedError refuses cmd because the MMU is disabled.
func StoppedError(cmd string) *HostError {
	return New(ErrStopped, "MMU is stopped").SetSection(cmd)
}

// NotReadyError refuses cmd because the MMU never became active.
func NotReadyError(cmd string) *HostError {
	return New(ErrNotReady, "MMU not responding").SetSection(cmd)
}

// BusyError refuses a blocking command issued from inside a control step.
func BusyError(cmd string) *HostError {
	return New(ErrBusy, "command issued while the MMU control loop is stepping").SetSection(cmd)
}

func InvalidSlotError(cmd string, slot, slots int) *HostError {
	return New(ErrInvalidSlot, fmt.Sprintf("slot %d out of range [0, %d)", slot, slots)).SetSection(cmd)
}

// ColdExtrudeError refuses an extruder move below the minimum temperature.
func ColdExtrudeError(cmd string, temp, min float64) *HostError {
	return New(ErrColdExtrude, fmt.Sprintf("hotend %.1fC below minimum extrude temperature %.1fC", temp, min)).
		SetSection(cmd)
}

func InvalidArgError(cmd, param string, value any) *HostError {
	return New(ErrInvalidArg, fmt.Sprintf("invalid %s %v", param, value)).SetSection(cmd).SetOption(param)
}

// HardwareError wraps a failure of a local line or port.
func HardwareError(component string, err error) *HostError {
	return Wrap(err, ErrHardware, component+" failed")
}

func RuntimeError(msg string) *HostError {
	return New(ErrRuntime, msg)
}

// Is reports whether any HostError in err's chain has the given code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var he *HostError
		if !stderrors.As(err, &he) {
			return false
		}
		if he.Code == code {
			return true
		}
		err = he.Err
	}
	return false
}

func isAny(err error, codes []ErrorCode) bool {
	for _, c := range codes {
		if Is(err, c) {
			return true
		}
	}
	return false
}

// IsConfig reports a configuration problem.
func IsConfig(err error) bool { return isAny(err, configCodes) }

// IsRejection reports a command refused before any request reached the MMU.
func IsRejection(err error) bool { return isAny(err, rejectionCodes) }

// CodeOf returns the code of the outermost HostError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var he *HostError
	if stderrors.As(err, &he) {
		return he.Code
	}
	return ""
}
