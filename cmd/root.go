// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/esslink/pkg/config"
	"github.com/Thermoquad/esslink/pkg/logging"
)

var (
	configPath string

	// Serial connection flags, override the config file
	portName string
	baudRate int

	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "esslink",
	Short: "Wi-Fi link manager for the energy-storage controller",
	Long: `esslink - Keeps the energy-storage controller reachable over Wi-Fi.

Drives an ESP-AT Wi-Fi co-processor over a serial port, either joining an
existing network (station) or hosting its own (access point) and serving
one TCP client that speaks the controller protocol.

Configuration:
  --config esslink.yaml, then ESSLINK_* environment variables, then flags.

Secrets are never taken from flags. Use the config file, the environment
(ESSLINK_STATION_PASSWORD, ESSLINK_AP_PASSWORD, ESSLINK_EVENTS_SECRET) or
--prompt-password.`,
	Version:       "0.4.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port of the Wi-Fi module")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (default from config, 115200)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if portName != "" {
		cfg.Serial.Port = portName
	}
	if baudRate > 0 {
		cfg.Serial.Baud = baudRate
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, func() error, error) {
	return logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
}
