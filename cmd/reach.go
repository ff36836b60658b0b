// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/esslink/pkg/radio"
)

var (
	reachTarget string
	reachCount  int
)

var reachCmd = &cobra.Command{
	Use:   "reach",
	Short: "Ping a host through the module's station link",
	Long: `Send ICMP echo requests from the Wi-Fi module and report round trips.

If the module is not associated yet, it joins the configured station
network first. This is the same reachability check the link manager runs
in station mode.

Exit codes:
  0 - All pings answered
  1 - One or more pings failed
  2 - Connection or join error`,
	RunE: runReach,
}

func init() {
	rootCmd.AddCommand(reachCmd)
	reachCmd.Flags().StringVar(&reachTarget, "target", "", "Host to ping (default from config)")
	reachCmd.Flags().IntVar(&reachCount, "count", 3, "Number of pings to send")
}

func runReach(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if reachTarget == "" {
		reachTarget = cfg.Wifi.Station.PingTarget
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

	fmt.Printf("esslink - Reachability Check\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Target: %s\n", reachTarget)
	fmt.Printf("Count: %d pings\n\n", reachCount)

	if o := dev.Init(); !o.OK() {
		fmt.Fprintf(os.Stderr, "Module not responding: %v\n", o)
		os.Exit(2)
	}

	if !dev.IsJoined() {
		ssid := cfg.Wifi.Station.SSID
		if ssid == "" {
			fmt.Fprintf(os.Stderr, "Not associated and no station SSID configured\n")
			os.Exit(2)
		}
		fmt.Printf("Joining %q... ", ssid)
		if o := dev.SetMode(radio.ModeStation); !o.OK() {
			fmt.Printf("FAILED: %v\n", o)
			os.Exit(2)
		}
		if o := dev.Join(ssid, cfg.Wifi.Station.Password); !o.OK() {
			fmt.Printf("FAILED: %v\n", o)
			os.Exit(2)
		}
		fmt.Printf("ok\n")
	}
	if o, ip := dev.CopyAssignedIP(); o.OK() {
		fmt.Printf("Station address: %s\n\n", ip)
	}

	successCount := 0
	var total time.Duration
	for i := 1; i <= reachCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, reachCount)
		start := time.Now()
		o := dev.Ping(reachTarget)
		rtt := time.Since(start)
		if o.OK() {
			fmt.Printf("reply from %s, rtt=%v\n", reachTarget, rtt.Round(time.Millisecond))
			successCount++
			total += rtt
		} else {
			fmt.Printf("FAILED: %v\n", o)
		}
		if i < reachCount {
			time.Sleep(500 * time.Millisecond)
		}
	}

	failCount := reachCount - successCount
	fmt.Printf("\n--- %s ping statistics ---\n", reachTarget)
	fmt.Printf("%d pings sent, %d replies received, %.0f%% packet loss\n",
		reachCount, successCount, float64(failCount)/float64(reachCount)*100)
	if successCount > 0 {
		fmt.Printf("average rtt %v\n", (total / time.Duration(successCount)).Round(time.Millisecond))
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
