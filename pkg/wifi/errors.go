// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/esslink/pkg/radio"
)

// ErrorCode is the normalized outcome of a radio operation
type ErrorCode int32

// Error code values
const (
	Ok ErrorCode = iota
	Timeout
	ParseError
	NoIP
	NoFreeConnection
	ConnectFailed
	NotConnected
	NoDevice
	Blocked
	Closed
	MemoryError
	ParametersInvalid
	Unknown
)

var errorCodeNames = [...]string{
	Ok:                "OK",
	Timeout:           "TIMEOUT",
	ParseError:        "PARSE_ERROR",
	NoIP:              "NO_IP",
	NoFreeConnection:  "NO_FREE_CONNECTION",
	ConnectFailed:     "CONNECT_FAILED",
	NotConnected:      "NOT_CONNECTED",
	NoDevice:          "NO_DEVICE",
	Blocked:           "BLOCKED",
	Closed:            "CLOSED",
	MemoryError:       "MEMORY_ERROR",
	ParametersInvalid: "PARAMETERS_INVALID",
	Unknown:           "UNKNOWN",
}

func (c ErrorCode) String() string {
	if c >= 0 && int(c) < len(errorCodeNames) {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("ERROR_CODE(%d)", int32(c))
}

// MarshalText encodes the code by name
func (c ErrorCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a code name
func (c *ErrorCode) UnmarshalText(text []byte) error {
	for i, name := range errorCodeNames {
		if name == string(text) {
			*c = ErrorCode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown error code %q", text)
}

// Fatal reports whether the code means the board must be reset rather
// than retried. Memory errors point at corruption or a leak; running out
// of connections breaks the one-connection-at-a-time invariant.
func (c ErrorCode) Fatal() bool {
	return c == MemoryError || c == NoFreeConnection
}

// Classify maps every raw radio outcome onto an ErrorCode
func Classify(o radio.Outcome) ErrorCode {
	switch o {
	case radio.OutcomeOK:
		return Ok
	case radio.OutcomeTimeout:
		return Timeout
	case radio.OutcomeParse:
		return ParseError
	case radio.OutcomeNoIP:
		return NoIP
	case radio.OutcomeLinkLimit:
		return NoFreeConnection
	case radio.OutcomeConnFail, radio.OutcomeWrongPassword:
		return ConnectFailed
	case radio.OutcomeNoAP, radio.OutcomeNotConnected:
		return NotConnected
	case radio.OutcomeNoDevice:
		return NoDevice
	case radio.OutcomeBusy:
		return Blocked
	case radio.OutcomeClosed:
		return Closed
	case radio.OutcomeNoMemory:
		return MemoryError
	case radio.OutcomeInvalidParam:
		return ParametersInvalid
	default:
		return Unknown
	}
}

var (
	// ErrAlreadyRunning is returned by Start while a role driver is active
	ErrAlreadyRunning = errors.New("wifi: role driver already running")

	// ErrFatal marks a driver exit that triggered a system reset
	ErrFatal = errors.New("wifi: unrecoverable radio error")
)

// OpError records the failed operation and its normalized code
type OpError struct {
	Op   string
	Code ErrorCode
}

func (e *OpError) Error() string {
	return fmt.Sprintf("wifi: %s: %s", e.Op, e.Code)
}

// Unwrap lets errors.Is(err, ErrFatal) match fatal codes
func (e *OpError) Unwrap() error {
	if e.Code.Fatal() {
		return ErrFatal
	}
	return nil
}
