// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import (
	"fmt"
	"net"
	"time"

	"github.com/Thermoquad/esslink/pkg/radio"
)

// Default timing
const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultShortDelay     = time.Second
	DefaultReceiveTimeout = 5 * time.Second
	DefaultServerPort     = 8888
	DefaultPingTarget     = "8.8.8.8"
)

// Default retry thresholds
const (
	DefaultScanThreshold     = 10
	DefaultJoinThreshold     = 5
	DefaultNetCheckThreshold = 5
)

// Config holds everything the role drivers need
type Config struct {
	// Station
	TargetSSID   string
	TargetSecret string
	PingTarget   string
	ScanCapacity int

	// Access point
	AP              radio.APConfig
	APAddress       net.IP
	APGateway       net.IP
	APNetmask       net.IP
	ServerPort      int
	StationCapacity int

	// Timing
	PollInterval   time.Duration
	ShortDelay     time.Duration
	ReceiveTimeout time.Duration

	// Backoff
	Scan     RetryPolicy
	Join     RetryPolicy
	NetCheck RetryPolicy
}

// DefaultConfig returns the built-in station and AP parameters
func DefaultConfig() Config {
	return Config{
		PingTarget:   DefaultPingTarget,
		ScanCapacity: 10,
		AP: radio.APConfig{
			SSID:        "ESS-Controller",
			Channel:     5,
			Encryption:  radio.EncryptionWPA2PSK,
			MaxStations: 1,
		},
		APAddress:       net.IPv4(192, 168, 4, 1),
		APGateway:       net.IPv4(192, 168, 4, 1),
		APNetmask:       net.IPv4(255, 255, 255, 0),
		ServerPort:      DefaultServerPort,
		StationCapacity: 4,
		PollInterval:    DefaultPollInterval,
		ShortDelay:      DefaultShortDelay,
		ReceiveTimeout:  DefaultReceiveTimeout,
		Scan:            RetryPolicy{Threshold: DefaultScanThreshold, LongDelay: 60 * time.Second},
		Join:            RetryPolicy{Threshold: DefaultJoinThreshold, LongDelay: 30 * time.Second},
		NetCheck:        RetryPolicy{Threshold: DefaultNetCheckThreshold, LongDelay: 30 * time.Second},
	}
}

// Validate checks the parameters needed by role
func (c Config) Validate(role Role) error {
	switch role {
	case RoleStation:
		if c.TargetSSID == "" {
			return fmt.Errorf("station SSID is required")
		}
		if c.PingTarget == "" {
			return fmt.Errorf("ping target is required")
		}
	case RoleAccessPoint:
		if c.AP.SSID == "" {
			return fmt.Errorf("access point SSID is required")
		}
		if c.AP.Encryption != radio.EncryptionOpen && len(c.AP.Secret) < 8 {
			return fmt.Errorf("access point secret must be at least 8 characters")
		}
		if c.ServerPort <= 0 || c.ServerPort > 65535 {
			return fmt.Errorf("invalid server port %d", c.ServerPort)
		}
		if c.APAddress.To4() == nil || c.APNetmask.To4() == nil {
			return fmt.Errorf("access point address and netmask must be IPv4")
		}
	default:
		return fmt.Errorf("unknown role %v", role)
	}
	if c.PollInterval <= 0 || c.ShortDelay <= 0 {
		return fmt.Errorf("poll interval and short delay must be positive")
	}
	return nil
}
