// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/esslink/pkg/radio"
)

var scanCapacity int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List visible Wi-Fi networks through the module",
	Long: `Put the module in station mode and scan for access points once.

Networks are listed strongest first. The configured station network is
marked with '*'.

Exit codes:
  0 - At least one network found
  1 - Scan failed or nothing found
  2 - Connection error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanCapacity, "max", 20, "Maximum networks to list")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	dev, connInfo, err := openRadio(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dev.Shutdown() //nolint:errcheck

	fmt.Printf("esslink - Network Scan\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	if o := dev.Init(); !o.OK() {
		fmt.Fprintf(os.Stderr, "Module not responding: %v\n", o)
		os.Exit(2)
	}
	if o := dev.SetMode(radio.ModeStation); !o.OK() {
		fmt.Printf("SET MODE FAILED: %v\n", o)
		os.Exit(1)
	}

	o, aps := dev.ScanAccessPoints(scanCapacity)
	if !o.OK() {
		fmt.Printf("SCAN FAILED: %v\n", o)
		os.Exit(1)
	}
	sort.Slice(aps, func(i, j int) bool { return aps[i].RSSI > aps[j].RSSI })

	fmt.Printf("   %-32s %5s %3s  %-17s %s\n", "SSID", "RSSI", "CH", "BSSID", "SECURITY")
	for _, ap := range aps {
		mark := " "
		if ap.SSID != "" && ap.SSID == cfg.Wifi.Station.SSID {
			mark = "*"
		}
		fmt.Printf(" %s %-32s %5d %3d  %-17s %s\n", mark, ap.SSID, ap.RSSI, ap.Channel, ap.BSSID, ap.Encryption)
	}

	fmt.Printf("\n--- Scan summary ---\n")
	fmt.Printf("Networks found: %d\n", len(aps))
	if len(aps) == 0 {
		os.Exit(1)
	}
	return nil
}
