// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/esslink/pkg/events"
)

var soakDuration int

var soakCmd = &cobra.Command{
	Use:   "soak",
	Short: "Test events API connection stability",
	Long: `Hold a connection to the events API open and count what arrives.

Useful for checking that a monitor link survives long enough, and that
status and telemetry keep flowing.

Exit codes:
  0 - Test completed normally
  1 - Connection dropped during the test
  2 - Connection error`,
	RunE: runSoak,
}

func init() {
	rootCmd.AddCommand(soakCmd)
	soakCmd.Flags().IntVar(&soakDuration, "duration", 30, "Test duration in seconds")
	soakCmd.Flags().StringVar(&monitorURL, "url", "ws://localhost:8080/api/v1/events", "Events endpoint")
	soakCmd.Flags().StringVar(&monitorToken, "token", "", "Bearer token for the events API")
}

func runSoak(cmd *cobra.Command, args []string) error {
	token, err := resolveToken()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := events.Dial(ctx, monitorURL, token)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close() //nolint:errcheck

	fmt.Printf("Events API Stability Test\n")
	fmt.Printf("Endpoint: %s\n", monitorURL)
	fmt.Printf("Duration: %d seconds\n\n", soakDuration)

	start := time.Now()
	endTime := start.Add(time.Duration(soakDuration) * time.Second)
	counts := make(map[events.EventType]int)
	heartbeat := time.NewTicker(5 * time.Second)
	defer heartbeat.Stop()

	for time.Now().Before(endTime) {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), client.Err())
				printSoakResults(time.Since(start), counts)
				fmt.Printf("Result: FAILED (connection dropped)\n")
				os.Exit(1)
			}
			counts[ev.Type]++
		case <-heartbeat.C:
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), time.Until(endTime).Seconds())
		case <-time.After(time.Until(endTime)):
		}
	}

	printSoakResults(time.Since(start), counts)
	fmt.Printf("Result: PASSED (connection stable)\n")
	return nil
}

func printSoakResults(elapsed time.Duration, counts map[events.EventType]int) {
	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %v\n", elapsed.Round(time.Second))
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("%-10s %d\n", t+":", counts[events.EventType(t)])
	}
}
