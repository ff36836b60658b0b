// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the board configuration: built-in defaults, then
// a YAML file, then environment overrides, then validation.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/Thermoquad/esslink/pkg/radio"
	"github.com/Thermoquad/esslink/pkg/wifi"
)

// Environment overrides
const (
	EnvRole            = "ESSLINK_ROLE"
	EnvStationPassword = "ESSLINK_STATION_PASSWORD"
	EnvAPPassword      = "ESSLINK_AP_PASSWORD"
	EnvEventsSecret    = "ESSLINK_EVENTS_SECRET"
)

type Config struct {
	Serial SerialConfig `yaml:"serial"`
	Wifi   WifiConfig   `yaml:"wifi"`
	Events EventsConfig `yaml:"events"`
	Log    LogConfig    `yaml:"log"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type WifiConfig struct {
	Role        string            `yaml:"role"` // station | ap
	Station     StationConfig     `yaml:"station"`
	AccessPoint AccessPointConfig `yaml:"accessPoint"`
	Timing      TimingConfig      `yaml:"timing"`
	Retry       RetryConfig       `yaml:"retry"`
}

type StationConfig struct {
	SSID       string `yaml:"ssid"`
	Password   string `yaml:"password"`
	PingTarget string `yaml:"pingTarget"`
}

type AccessPointConfig struct {
	SSID        string `yaml:"ssid"`
	Password    string `yaml:"password"`
	Channel     int    `yaml:"channel"`
	Encryption  string `yaml:"encryption"` // open | wpa | wpa2 | wpa-wpa2
	MaxStations int    `yaml:"maxStations"`
	Hidden      bool   `yaml:"hidden"`
	Persist     bool   `yaml:"persist"`
	IP          string `yaml:"ip"`
	Gateway     string `yaml:"gateway"`
	Netmask     string `yaml:"netmask"`
	Port        int    `yaml:"port"`
}

type TimingConfig struct {
	PollMs           int `yaml:"pollMs"`
	ShortDelayMs     int `yaml:"shortDelayMs"`
	ReceiveTimeoutMs int `yaml:"receiveTimeoutMs"`
	AcceptTimeoutMs  int `yaml:"acceptTimeoutMs"`
	CommandTimeoutMs int `yaml:"commandTimeoutMs"`
}

type RetryConfig struct {
	MaxScanErrors      int `yaml:"maxScanErrors"`
	ScanBackoffSec     int `yaml:"scanBackoffSec"`
	MaxJoinErrors      int `yaml:"maxJoinErrors"`
	JoinBackoffSec     int `yaml:"joinBackoffSec"`
	MaxNetCheckErrors  int `yaml:"maxNetCheckErrors"`
	NetCheckBackoffSec int `yaml:"netCheckBackoffSec"`
}

type EventsConfig struct {
	Listen string `yaml:"listen"` // empty disables the API
	Secret string `yaml:"secret"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Load builds the configuration. An empty path uses defaults and the
// environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	d := wifi.DefaultConfig()
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyUSB0",
			Baud: 115200,
		},
		Wifi: WifiConfig{
			Role: "ap",
			Station: StationConfig{
				PingTarget: d.PingTarget,
			},
			AccessPoint: AccessPointConfig{
				SSID:        d.AP.SSID,
				Channel:     d.AP.Channel,
				Encryption:  "wpa2",
				MaxStations: d.AP.MaxStations,
				IP:          d.APAddress.String(),
				Gateway:     d.APGateway.String(),
				Netmask:     d.APNetmask.String(),
				Port:        d.ServerPort,
			},
			Timing: TimingConfig{
				PollMs:           int(d.PollInterval / time.Millisecond),
				ShortDelayMs:     int(d.ShortDelay / time.Millisecond),
				ReceiveTimeoutMs: int(d.ReceiveTimeout / time.Millisecond),
				AcceptTimeoutMs:  5000,
				CommandTimeoutMs: 2000,
			},
			Retry: RetryConfig{
				MaxScanErrors:      d.Scan.Threshold,
				ScanBackoffSec:     int(d.Scan.LongDelay / time.Second),
				MaxJoinErrors:      d.Join.Threshold,
				JoinBackoffSec:     int(d.Join.LongDelay / time.Second),
				MaxNetCheckErrors:  d.NetCheck.Threshold,
				NetCheckBackoffSec: int(d.NetCheck.LongDelay / time.Second),
			},
		},
		Events: EventsConfig{
			Listen: ":8080",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvRole); v != "" {
		cfg.Wifi.Role = v
	}
	if v := os.Getenv(EnvStationPassword); v != "" {
		cfg.Wifi.Station.Password = v
	}
	if v := os.Getenv(EnvAPPassword); v != "" {
		cfg.Wifi.AccessPoint.Password = v
	}
	if v := os.Getenv(EnvEventsSecret); v != "" {
		cfg.Events.Secret = v
	}
}

// Validate checks ranges and formats. Role-specific requirements such as
// a station SSID are checked when that role starts.
func (c *Config) Validate() error {
	if _, err := wifi.ParseRole(c.Wifi.Role); err != nil {
		return err
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Serial.Baud)
	}

	ap := c.Wifi.AccessPoint
	if ap.Channel < 1 || ap.Channel > 13 {
		return fmt.Errorf("access point channel %d is outside [1, 13]", ap.Channel)
	}
	if _, err := radio.ParseEncryption(ap.Encryption); err != nil {
		return err
	}
	if ap.MaxStations < 1 || ap.MaxStations > 8 {
		return fmt.Errorf("access point maxStations %d is outside [1, 8]", ap.MaxStations)
	}
	for name, v := range map[string]string{"ip": ap.IP, "gateway": ap.Gateway, "netmask": ap.Netmask} {
		if ip := net.ParseIP(v); ip == nil || ip.To4() == nil {
			return fmt.Errorf("access point %s %q is not an IPv4 address", name, v)
		}
	}
	if ap.Port <= 0 || ap.Port > 65535 {
		return fmt.Errorf("access point port %d is outside [1, 65535]", ap.Port)
	}

	t := c.Wifi.Timing
	if t.PollMs <= 0 || t.ShortDelayMs <= 0 {
		return fmt.Errorf("pollMs and shortDelayMs must be positive")
	}
	if t.ReceiveTimeoutMs < 0 || t.AcceptTimeoutMs < 0 || t.CommandTimeoutMs < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	r := c.Wifi.Retry
	for name, v := range map[string]int{
		"maxScanErrors": r.MaxScanErrors, "scanBackoffSec": r.ScanBackoffSec,
		"maxJoinErrors": r.MaxJoinErrors, "joinBackoffSec": r.JoinBackoffSec,
		"maxNetCheckErrors": r.MaxNetCheckErrors, "netCheckBackoffSec": r.NetCheckBackoffSec,
	} {
		if v < 0 {
			return fmt.Errorf("retry %s must not be negative", name)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return nil
}

// Role returns the configured starting role
func (c *Config) Role() wifi.Role {
	r, _ := wifi.ParseRole(c.Wifi.Role)
	return r
}

// WifiConfig converts to the link manager's parameters
func (c *Config) WifiConfig() wifi.Config {
	ap := c.Wifi.AccessPoint
	enc, _ := radio.ParseEncryption(ap.Encryption)
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }

	w := wifi.DefaultConfig()
	w.TargetSSID = c.Wifi.Station.SSID
	w.TargetSecret = c.Wifi.Station.Password
	w.PingTarget = c.Wifi.Station.PingTarget
	w.AP = radio.APConfig{
		SSID:        ap.SSID,
		Secret:      ap.Password,
		Channel:     ap.Channel,
		Encryption:  enc,
		MaxStations: ap.MaxStations,
		Hidden:      ap.Hidden,
		Persist:     ap.Persist,
	}
	w.APAddress = net.ParseIP(ap.IP)
	w.APGateway = net.ParseIP(ap.Gateway)
	w.APNetmask = net.ParseIP(ap.Netmask)
	w.ServerPort = ap.Port
	w.PollInterval = ms(c.Wifi.Timing.PollMs)
	w.ShortDelay = ms(c.Wifi.Timing.ShortDelayMs)
	w.ReceiveTimeout = ms(c.Wifi.Timing.ReceiveTimeoutMs)
	w.Scan = wifi.RetryPolicy{Threshold: c.Wifi.Retry.MaxScanErrors, LongDelay: sec(c.Wifi.Retry.ScanBackoffSec)}
	w.Join = wifi.RetryPolicy{Threshold: c.Wifi.Retry.MaxJoinErrors, LongDelay: sec(c.Wifi.Retry.JoinBackoffSec)}
	w.NetCheck = wifi.RetryPolicy{Threshold: c.Wifi.Retry.MaxNetCheckErrors, LongDelay: sec(c.Wifi.Retry.NetCheckBackoffSec)}
	return w
}

// AcceptTimeout is the radio's accept poll period
func (c *Config) AcceptTimeout() time.Duration {
	return time.Duration(c.Wifi.Timing.AcceptTimeoutMs) * time.Millisecond
}

// CommandTimeout is the radio's AT command timeout
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Wifi.Timing.CommandTimeoutMs) * time.Millisecond
}
