// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/esslink/pkg/radio"
	"github.com/Thermoquad/esslink/pkg/wifi"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "esslink.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// ============================================================
// Defaults
// ============================================================

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Role() != wifi.RoleAccessPoint {
		t.Errorf("default role = %v", cfg.Role())
	}
	if cfg.Serial.Baud != 115200 {
		t.Errorf("baud = %d", cfg.Serial.Baud)
	}

	// The defaults must round trip to the manager's own defaults
	got := cfg.WifiConfig()
	want := wifi.DefaultConfig()
	if got.ServerPort != want.ServerPort || got.PollInterval != want.PollInterval ||
		got.Scan != want.Scan || got.Join != want.Join || got.NetCheck != want.NetCheck {
		t.Errorf("WifiConfig = %+v, want %+v", got, want)
	}
	if !got.APAddress.Equal(want.APAddress) || got.AP.Encryption != want.AP.Encryption {
		t.Errorf("AP = %+v %v", got.AP, got.APAddress)
	}
}

// ============================================================
// Load
// ============================================================

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
serial:
  port: /dev/ttyS1
wifi:
  role: station
  station:
    ssid: plant-net
    password: hunter22
    pingTarget: 10.0.0.1
  timing:
    pollMs: 250
  retry:
    maxJoinErrors: 7
    joinBackoffSec: 90
events:
  listen: 127.0.0.1:9000
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyS1" || cfg.Serial.Baud != 115200 {
		t.Errorf("serial = %+v", cfg.Serial)
	}
	if cfg.Role() != wifi.RoleStation {
		t.Errorf("role = %v", cfg.Role())
	}

	w := cfg.WifiConfig()
	if w.TargetSSID != "plant-net" || w.TargetSecret != "hunter22" || w.PingTarget != "10.0.0.1" {
		t.Errorf("station = %q %q %q", w.TargetSSID, w.TargetSecret, w.PingTarget)
	}
	if w.PollInterval != 250*time.Millisecond {
		t.Errorf("poll = %v", w.PollInterval)
	}
	if w.Join != (wifi.RetryPolicy{Threshold: 7, LongDelay: 90 * time.Second}) {
		t.Errorf("join = %+v", w.Join)
	}
	if w.Scan.Threshold != wifi.DefaultScanThreshold {
		t.Errorf("scan defaults lost: %+v", w.Scan)
	}
	if err := w.Validate(wifi.RoleStation); err != nil {
		t.Errorf("station config invalid: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "wifi:\n  rol: station\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvRole, "station")
	t.Setenv(EnvStationPassword, "from-env")
	t.Setenv(EnvAPPassword, "ap-from-env")
	t.Setenv(EnvEventsSecret, "jwt-secret")

	path := writeFile(t, "wifi:\n  role: ap\n  station:\n    password: from-file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Wifi.Role != "station" {
		t.Errorf("role = %q", cfg.Wifi.Role)
	}
	if cfg.Wifi.Station.Password != "from-env" || cfg.Wifi.AccessPoint.Password != "ap-from-env" {
		t.Errorf("passwords = %q %q", cfg.Wifi.Station.Password, cfg.Wifi.AccessPoint.Password)
	}
	if cfg.Events.Secret != "jwt-secret" {
		t.Errorf("secret = %q", cfg.Events.Secret)
	}
}

// ============================================================
// Validate
// ============================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad role", func(c *Config) { c.Wifi.Role = "mesh" }, "role"},
		{"zero baud", func(c *Config) { c.Serial.Baud = 0 }, "baud"},
		{"channel", func(c *Config) { c.Wifi.AccessPoint.Channel = 14 }, "channel"},
		{"encryption", func(c *Config) { c.Wifi.AccessPoint.Encryption = "wep" }, "encryption"},
		{"max stations", func(c *Config) { c.Wifi.AccessPoint.MaxStations = 0 }, "maxStations"},
		{"ip", func(c *Config) { c.Wifi.AccessPoint.IP = "fe80::1" }, "IPv4"},
		{"port", func(c *Config) { c.Wifi.AccessPoint.Port = 70000 }, "port"},
		{"poll", func(c *Config) { c.Wifi.Timing.PollMs = 0 }, "pollMs"},
		{"timeout", func(c *Config) { c.Wifi.Timing.ReceiveTimeoutMs = -1 }, "timeouts"},
		{"retry", func(c *Config) { c.Wifi.Retry.MaxScanErrors = -1 }, "maxScanErrors"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestWifiConfigAccessPoint(t *testing.T) {
	cfg := Default()
	cfg.Wifi.AccessPoint.Password = "battery-room"
	cfg.Wifi.AccessPoint.Encryption = "wpa-wpa2"
	cfg.Wifi.AccessPoint.Hidden = true
	cfg.Wifi.Timing.ReceiveTimeoutMs = 0

	w := cfg.WifiConfig()
	if w.AP.Encryption != radio.EncryptionWPAWPA2PSK || !w.AP.Hidden || w.AP.Secret != "battery-room" {
		t.Errorf("AP = %+v", w.AP)
	}
	if w.ReceiveTimeout != 0 {
		t.Errorf("receive timeout = %v", w.ReceiveTimeout)
	}
	if err := w.Validate(wifi.RoleAccessPoint); err != nil {
		t.Errorf("AP config invalid: %v", err)
	}
	if cfg.AcceptTimeout() != 5*time.Second || cfg.CommandTimeout() != 2*time.Second {
		t.Errorf("radio timeouts = %v %v", cfg.AcceptTimeout(), cfg.CommandTimeout())
	}
}
