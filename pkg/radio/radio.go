// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"fmt"
	"net"
	"time"
)

// Mode selects the operating role of the radio
type Mode int

// Radio modes, numbered like AT+CWMODE
const (
	ModeStation     Mode = 1
	ModeAccessPoint Mode = 2
	ModeBoth        Mode = 3
)

func (m Mode) String() string {
	switch m {
	case ModeStation:
		return "station"
	case ModeAccessPoint:
		return "access-point"
	case ModeBoth:
		return "station+access-point"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Encryption is the access point security mode
type Encryption int

// Encryption values, numbered like AT+CWSAP <ecn>
const (
	EncryptionOpen       Encryption = 0
	EncryptionWPAPSK     Encryption = 2
	EncryptionWPA2PSK    Encryption = 3
	EncryptionWPAWPA2PSK Encryption = 4
)

func (e Encryption) String() string {
	switch e {
	case EncryptionOpen:
		return "open"
	case EncryptionWPAPSK:
		return "wpa"
	case EncryptionWPA2PSK:
		return "wpa2"
	case EncryptionWPAWPA2PSK:
		return "wpa-wpa2"
	default:
		return fmt.Sprintf("ecn(%d)", int(e))
	}
}

// ParseEncryption maps a configuration name to an Encryption value
func ParseEncryption(s string) (Encryption, error) {
	switch s {
	case "open", "":
		return EncryptionOpen, nil
	case "wpa":
		return EncryptionWPAPSK, nil
	case "wpa2":
		return EncryptionWPA2PSK, nil
	case "wpa-wpa2", "wpa/wpa2":
		return EncryptionWPAWPA2PSK, nil
	}
	return EncryptionOpen, fmt.Errorf("unknown encryption %q (use open, wpa, wpa2, wpa-wpa2)", s)
}

// AccessPoint is one entry of a scan result
type AccessPoint struct {
	SSID       string
	RSSI       int // dBm
	Channel    int
	Encryption Encryption
	BSSID      string
}

// StationInfo is a client associated with our own access point
type StationInfo struct {
	IP  net.IP
	MAC string
}

// APConfig holds the soft-AP parameters
type APConfig struct {
	SSID        string
	Secret      string
	Channel     int
	Encryption  Encryption
	MaxStations int
	Hidden      bool
	Persist     bool // store as module default instead of current-only
}

// SocketKind selects the transport of a socket
type SocketKind int

const (
	SocketTCP SocketKind = iota
	SocketUDP
)

// Socket is an opaque handle to a TCP endpoint on the radio.
// Handles are created by CreateSocket or Accept and must be released
// with Close followed by Delete.
type Socket struct {
	ID      int
	Gen     uint64 // tells apart links that reuse the same ID
	Kind    SocketKind
	Port    int
	Server  bool
	Timeout time.Duration
}

func (s *Socket) String() string {
	if s == nil {
		return "socket(nil)"
	}
	if s.Server {
		return fmt.Sprintf("server:%d", s.Port)
	}
	return fmt.Sprintf("link:%d", s.ID)
}

// Radio is the command interface of the Wi-Fi co-processor.
//
// Every request blocks until the module answers or the request's own
// timeout elapses. Implementations must be safe for one driving goroutine
// plus the event handler running concurrently.
type Radio interface {
	Init() Outcome
	Reset() Outcome
	SetMode(mode Mode) Outcome

	ScanAccessPoints(capacity int) (Outcome, []AccessPoint)
	Join(ssid, secret string) Outcome
	IsJoined() bool
	CopyAssignedIP() (Outcome, net.IP)
	Ping(target string) Outcome

	ConfigureAccessPoint(cfg APConfig) Outcome
	ListStations(capacity int) (Outcome, []StationInfo)
	SetIP(ip, gateway, netmask net.IP) Outcome

	CreateSocket(kind SocketKind) *Socket
	Bind(s *Socket, port int) Outcome
	Listen(s *Socket) Outcome
	Accept(s *Socket) (Outcome, *Socket)
	SetReceiveTimeout(s *Socket, timeout time.Duration)
	Receive(s *Socket) (Outcome, *Buffer)
	Close(s *Socket) Outcome
	Delete(s *Socket)

	// SetEventHandler registers the single event callback. The handler
	// runs on the radio's own goroutine and must return promptly.
	SetEventHandler(fn func(Event))
}
