// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package radio describes the command and event surface of the Wi-Fi
// co-processor on the energy-storage controller board.
//
// Requests are synchronous and return an Outcome from a fixed set. Lifecycle
// notifications arrive asynchronously through a single event handler
// registered with SetEventHandler. Implementations never retry a request on
// their own; all retry and backoff policy lives in the caller.
package radio

import "fmt"

// Outcome is the raw result code of a radio request
type Outcome int

// Outcome values
const (
	OutcomeOK Outcome = iota
	OutcomeError
	OutcomeFail
	OutcomeTimeout
	OutcomeBusy
	OutcomeParse
	OutcomeNoIP
	OutcomeLinkLimit
	OutcomeConnFail
	OutcomeWrongPassword
	OutcomeNoAP
	OutcomeNotConnected
	OutcomeNoDevice
	OutcomeClosed
	OutcomeNoMemory
	OutcomeInvalidParam
)

var outcomeNames = map[Outcome]string{
	OutcomeOK:            "OK",
	OutcomeError:         "ERROR",
	OutcomeFail:          "FAIL",
	OutcomeTimeout:       "TIMEOUT",
	OutcomeBusy:          "BUSY",
	OutcomeParse:         "PARSE_ERROR",
	OutcomeNoIP:          "NO_IP",
	OutcomeLinkLimit:     "LINK_LIMIT",
	OutcomeConnFail:      "CONNECT_FAIL",
	OutcomeWrongPassword: "WRONG_PASSWORD",
	OutcomeNoAP:          "NO_AP",
	OutcomeNotConnected:  "NOT_CONNECTED",
	OutcomeNoDevice:      "NO_DEVICE",
	OutcomeClosed:        "CLOSED",
	OutcomeNoMemory:      "NO_MEMORY",
	OutcomeInvalidParam:  "INVALID_PARAM",
}

// String returns the AT-style name of the outcome
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OUTCOME(%d)", int(o))
}

// OK reports whether the request succeeded
func (o Outcome) OK() bool {
	return o == OutcomeOK
}
