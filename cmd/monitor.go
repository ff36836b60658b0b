// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/esslink/pkg/events"
)

const envToken = "ESSLINK_TOKEN"

var (
	monitorURL   string
	monitorToken string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for a running link manager",
	Long: `Watch and drive a running "esslink run" over its events API.

The TUI shows link status, the latest controller telemetry and a log of
recent events. The connection is re-established automatically when lost.

Keys:
  r  restart the link
  s  start or switch to station role
  a  switch to access point role
  x  stop the link
  q  quit

The token comes from --token, ESSLINK_TOKEN, or is minted from the
configured events secret.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorURL, "url", "ws://localhost:8080/api/v1/events", "Events endpoint")
	monitorCmd.Flags().StringVar(&monitorToken, "token", "", "Bearer token for the events API")
}

// monitorConn handles connection lifecycle and reconnection
type monitorConn struct {
	url   string
	token string

	mu     sync.RWMutex
	client *events.Client

	p    *tea.Program
	done chan struct{}
}

func (mc *monitorConn) getClient() *events.Client {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.client
}

func (mc *monitorConn) setClient(c *events.Client) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.client = c
}

func (mc *monitorConn) dial() (*events.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return events.Dial(ctx, mc.url, mc.token)
}

// send issues a control request on the current connection
func (mc *monitorConn) send(ctl events.Control) error {
	c := mc.getClient()
	if c == nil {
		return fmt.Errorf("not connected")
	}
	return c.Send(ctl)
}

func resolveToken() (string, error) {
	if monitorToken != "" {
		return monitorToken, nil
	}
	if t := os.Getenv(envToken); t != "" {
		return t, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Events.Secret == "" {
		return "", nil
	}
	return events.MintToken(cfg.Events.Secret, "monitor", time.Hour)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	token, err := resolveToken()
	if err != nil {
		return err
	}

	mc := &monitorConn{url: monitorURL, token: token, done: make(chan struct{})}
	client, err := mc.dial()
	if err != nil {
		return err
	}
	mc.setClient(client)

	p := tea.NewProgram(initialMonitorModel(mc), tea.WithAltScreen())
	mc.p = p

	go mc.readerLoop()

	_, err = p.Run()
	close(mc.done)
	if c := mc.getClient(); c != nil {
		c.Close() //nolint:errcheck
	}
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// readerLoop forwards events to the TUI, reconnecting when the stream ends
func (mc *monitorConn) readerLoop() {
	for {
		c := mc.getClient()
		for ev := range c.Events() {
			mc.p.Send(monitorEventMsg{event: ev})
		}

		select {
		case <-mc.done:
			return
		default:
		}
		mc.p.Send(connectionLostMsg{err: c.Err()})

		if !mc.reconnect() {
			return
		}
	}
}

// reconnect retries with exponential backoff. It returns false if shutdown
// was requested meanwhile.
func (mc *monitorConn) reconnect() bool {
	if c := mc.getClient(); c != nil {
		c.Close() //nolint:errcheck
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-mc.done:
			return false
		case <-time.After(backoff):
		}

		c, err := mc.dial()
		if err == nil {
			mc.setClient(c)
			mc.p.Send(reconnectedMsg{url: mc.url})
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
