// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// esslink - Wi-Fi link manager for energy storage controllers
//
// Drives an ESP-AT Wi-Fi module as station or access point, relays
// controller traffic and serves link status to remote monitors.

package main

import (
	"os"

	"github.com/Thermoquad/esslink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
