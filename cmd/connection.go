// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/esslink/pkg/config"
	"github.com/Thermoquad/esslink/pkg/radio/espat"
)

// OpenSerialConnection opens the module's UART
func OpenSerialConnection(portName string, baudRate int) (io.ReadWriteCloser, error) {
	if portName == "" {
		return nil, fmt.Errorf("no serial port configured (use --port or serial.port)")
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return port, nil
}

// openRadio opens the serial port and starts an AT driver on it
func openRadio(cfg *config.Config, log *zap.Logger) (*espat.Device, string, error) {
	port, err := OpenSerialConnection(cfg.Serial.Port, cfg.Serial.Baud)
	if err != nil {
		return nil, "", err
	}
	dev := espat.New(port, espat.Options{
		Logger:         log,
		CommandTimeout: cfg.CommandTimeout(),
		AcceptTimeout:  cfg.AcceptTimeout(),
	})
	return dev, fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud), nil
}

// GetPassword prompts for a secret without echo
func GetPassword(prompt string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
