// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/esslink/pkg/radio/espat"
)

var (
	atLogInit     bool
	atLogCommands []string
)

var atLogCmd = &cobra.Command{
	Use:   "at_log",
	Short: "Display AT traffic with the Wi-Fi module",
	Long: `Continuously display classified AT traffic on the module's UART.

Each line is tagged with its kind: CMD (written by esslink), FINAL (result
of a command), URC (unsolicited report), IPD (received socket data) or DATA.

Examples:
  # Watch traffic after the init handshake
  esslink at_log --port /dev/ttyUSB0

  # Issue commands and watch the replies
  esslink at_log --cmd AT+GMR --cmd AT+CWMODE?`,
	RunE: runATLog,
}

func init() {
	rootCmd.AddCommand(atLogCmd)
	atLogCmd.Flags().BoolVar(&atLogInit, "init", true, "Run the init handshake first")
	atLogCmd.Flags().StringArrayVar(&atLogCommands, "cmd", nil, "AT command to send (repeatable)")
}

var lineStyles = map[espat.LineKind]lipgloss.Style{
	espat.LineCommand: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
	espat.LineFinal:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	espat.LineURC:     lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	espat.LineIPD:     lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	espat.LineData:    lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
}

func formatATLine(l espat.Line) string {
	kind := fmt.Sprintf("%-5s", l.Kind)
	text := l.Text
	if style, ok := lineStyles[l.Kind]; ok {
		kind = style.Render(kind)
	}
	return fmt.Sprintf("[%s] %s %s", l.At.Format("15:04:05.000"), kind, text)
}

func runATLog(cmd *cobra.Command, args []string) error {
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
		return err
	}
	defer dev.Shutdown() //nolint:errcheck

	fmt.Printf("esslink - AT Traffic Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	dev.SetLineTap(func(l espat.Line) {
		fmt.Println(formatATLine(l))
	})

	if atLogInit {
		if o := dev.Init(); !o.OK() {
			fmt.Printf("[ERROR] init: %v\n", o)
		}
	}
	for _, c := range atLogCommands {
		if _, o := dev.Cmd(c, cfg.CommandTimeout()); !o.OK() {
			fmt.Printf("[ERROR] %s: %v\n", c, o)
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
	case <-dev.Done():
		fmt.Printf("Connection closed\n")
	}
	return nil
}
