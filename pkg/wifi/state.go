// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import (
	"fmt"
	"sync/atomic"

	"github.com/Thermoquad/esslink/pkg/radio"
)

// Role is the mode the manager runs the radio in
type Role int32

const (
	RoleStation Role = iota
	RoleAccessPoint
)

func (r Role) String() string {
	switch r {
	case RoleStation:
		return "station"
	case RoleAccessPoint:
		return "ap"
	default:
		return fmt.Sprintf("role(%d)", int32(r))
	}
}

// ParseRole accepts the names used on the command line and in config files
func ParseRole(s string) (Role, error) {
	switch s {
	case "station", "sta", "":
		return RoleStation, nil
	case "ap", "access-point", "accesspoint":
		return RoleAccessPoint, nil
	}
	return RoleStation, fmt.Errorf("unknown role %q (use station or ap)", s)
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	v, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ConnectionState is the single shared record of connectivity.
//
// The readiness flags, restart request and last error are written by the
// radio event callback, the role driver and the control API concurrently,
// so they are atomics. server, client and pending are owned by the role
// driver goroutine and only touched elsewhere after it has exited.
type ConnectionState struct {
	role             atomic.Int32
	phase            atomic.Int32
	radioReady       atomic.Bool
	apReady          atomic.Bool
	stationReady     atomic.Bool
	peerConnected    atomic.Bool
	restartRequested atomic.Bool
	lastError        atomic.Int32
	ip               atomic.Value // string

	ScanErrors     RetryCounter
	JoinErrors     RetryCounter
	NetCheckErrors RetryCounter

	server  *radio.Socket
	client  *radio.Socket
	pending RecvBuffer
}

func (s *ConnectionState) reset(role Role, cfg Config) {
	s.role.Store(int32(role))
	s.phase.Store(int32(phaseWaitReady))
	s.apReady.Store(false)
	s.stationReady.Store(false)
	s.peerConnected.Store(false)
	s.restartRequested.Store(false)
	s.lastError.Store(int32(Ok))
	s.ip.Store("")
	s.ScanErrors.configure(cfg.Scan.Threshold)
	s.JoinErrors.configure(cfg.Join.Threshold)
	s.NetCheckErrors.configure(cfg.NetCheck.Threshold)
}

func (s *ConnectionState) setError(code ErrorCode) {
	s.lastError.Store(int32(code))
}

// Role returns the active or most recently started role
func (s *ConnectionState) Role() Role { return Role(s.role.Load()) }

// LastError returns the most recent failure code
func (s *ConnectionState) LastError() ErrorCode { return ErrorCode(s.lastError.Load()) }

// RadioReady reports whether the module has finished init or reset
func (s *ConnectionState) RadioReady() bool { return s.radioReady.Load() }

// APReady reports whether the soft-AP server is listening
func (s *ConnectionState) APReady() bool { return s.apReady.Load() }

// StationReady reports whether the station has verified connectivity
func (s *ConnectionState) StationReady() bool { return s.stationReady.Load() }

// PeerConnected reports whether a client is attached to the AP server
func (s *ConnectionState) PeerConnected() bool { return s.peerConnected.Load() }

// RestartRequested reports whether a restart is pending
func (s *ConnectionState) RestartRequested() bool { return s.restartRequested.Load() }

// Status is a point-in-time copy of ConnectionState
type Status struct {
	Role             Role      `json:"role"`
	Running          bool      `json:"running"`
	Phase            string    `json:"phase"`
	RadioReady       bool      `json:"radioReady"`
	APReady          bool      `json:"apReady"`
	StationReady     bool      `json:"stationReady"`
	PeerConnected    bool      `json:"peerConnected"`
	RestartRequested bool      `json:"restartRequested"`
	LastError        ErrorCode `json:"lastError"`
	IP               string    `json:"ip,omitempty"`
	ScanErrors       int       `json:"scanErrors"`
	JoinErrors       int       `json:"joinErrors"`
	NetCheckErrors   int       `json:"netCheckErrors"`
}

// Connected reports whether the active role is usable end to end
func (s Status) Connected() bool {
	if s.Role == RoleAccessPoint {
		return s.APReady && s.PeerConnected
	}
	return s.StationReady
}

func (s *ConnectionState) snapshot(running bool) Status {
	ip, _ := s.ip.Load().(string)
	return Status{
		Role:             s.Role(),
		Running:          running,
		Phase:            phase(s.phase.Load()).String(),
		RadioReady:       s.RadioReady(),
		APReady:          s.APReady(),
		StationReady:     s.StationReady(),
		PeerConnected:    s.PeerConnected(),
		RestartRequested: s.RestartRequested(),
		LastError:        s.LastError(),
		IP:               ip,
		ScanErrors:       s.ScanErrors.Count(),
		JoinErrors:       s.JoinErrors.Count(),
		NetCheckErrors:   s.NetCheckErrors.Count(),
	}
}
