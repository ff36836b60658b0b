// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"fmt"
	"net"
)

// EventKind identifies the variant of an Event
type EventKind int

// Event kinds
const (
	EvInitFinished EventKind = iota
	EvResetStarted
	EvResetDone
	EvRestored
	EvCommandTimeout
	EvUnsupportedVersion
	EvWifiConnected
	EvGotIP
	EvWifiDisconnected
	EvStationJoinResult
	EvStationListed
	EvAPStationJoined
	EvAPStationLeft
	EvAPIPAssigned
	EvServerStatus
)

var eventKindNames = [...]string{
	EvInitFinished:       "INIT_FINISHED",
	EvResetStarted:       "RESET_STARTED",
	EvResetDone:          "RESET_DONE",
	EvRestored:           "RESTORED",
	EvCommandTimeout:     "COMMAND_TIMEOUT",
	EvUnsupportedVersion: "UNSUPPORTED_VERSION",
	EvWifiConnected:      "WIFI_CONNECTED",
	EvGotIP:              "GOT_IP",
	EvWifiDisconnected:   "WIFI_DISCONNECTED",
	EvStationJoinResult:  "STATION_JOIN_RESULT",
	EvStationListed:      "STATION_LISTED",
	EvAPStationJoined:    "AP_STATION_JOINED",
	EvAPStationLeft:      "AP_STATION_LEFT",
	EvAPIPAssigned:       "AP_IP_ASSIGNED",
	EvServerStatus:       "SERVER_STATUS",
}

func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EVENT(%d)", int(k))
}

// Event is an asynchronous notification from the radio. Values are
// immutable once constructed.
type Event interface {
	Kind() EventKind
}

type InitFinished struct{}
type ResetStarted struct{}
type ResetDone struct{}
type Restored struct{}
type CommandTimeout struct{}
type UnsupportedVersion struct{}
type WifiConnected struct{}
type GotIP struct{}
type WifiDisconnected struct{}
type StationListed struct{}

// StationJoinResult reports the completion of a join attempt
type StationJoinResult struct {
	Outcome Outcome
	IP      net.IP
}

// APStationJoined reports a client associating with our access point
type APStationJoined struct {
	MAC string
}

// APStationLeft reports a client leaving our access point
type APStationLeft struct {
	MAC string
}

// APIPAssigned reports the DHCP lease handed to a client
type APIPAssigned struct {
	MAC string
	IP  net.IP
}

// ServerStatus reports a change of the TCP server state
type ServerStatus struct {
	Outcome Outcome
	Port    int
	Enabled bool
}

func (InitFinished) Kind() EventKind       { return EvInitFinished }
func (ResetStarted) Kind() EventKind       { return EvResetStarted }
func (ResetDone) Kind() EventKind          { return EvResetDone }
func (Restored) Kind() EventKind           { return EvRestored }
func (CommandTimeout) Kind() EventKind     { return EvCommandTimeout }
func (UnsupportedVersion) Kind() EventKind { return EvUnsupportedVersion }
func (WifiConnected) Kind() EventKind      { return EvWifiConnected }
func (GotIP) Kind() EventKind              { return EvGotIP }
func (WifiDisconnected) Kind() EventKind   { return EvWifiDisconnected }
func (StationJoinResult) Kind() EventKind  { return EvStationJoinResult }
func (StationListed) Kind() EventKind      { return EvStationListed }
func (APStationJoined) Kind() EventKind    { return EvAPStationJoined }
func (APStationLeft) Kind() EventKind      { return EvAPStationLeft }
func (APIPAssigned) Kind() EventKind       { return EvAPIPAssigned }
func (ServerStatus) Kind() EventKind       { return EvServerStatus }
