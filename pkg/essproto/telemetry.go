// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package essproto

import "fmt"

// StatusData is the battery summary the controller reports
type StatusData struct {
	SoC         float64 `json:"soc"`         // percent
	Voltage     float64 `json:"voltage"`     // volts
	Current     float64 `json:"current"`     // amps, negative when discharging
	Temperature float64 `json:"temperature"` // °C
	Mode        uint8   `json:"mode"`
	UptimeMs    uint64  `json:"uptimeMs"`
}

// CellData holds per-cell voltages for one bank
type CellData struct {
	Bank     uint8     `json:"bank"`
	Voltages []float64 `json:"voltages"`
}

func ParseStatusData(p *Packet) (StatusData, error) {
	if p.Type() != MsgStatusData {
		return StatusData{}, fmt.Errorf("expected %s, got %s",
			FormatMessageType(MsgStatusData), FormatMessageType(p.Type()))
	}
	if err := p.ParseError(); err != nil {
		return StatusData{}, err
	}
	m := p.PayloadMap()
	var s StatusData
	var ok bool
	if s.SoC, ok = GetMapFloat(m, KeyStatusSoC); !ok {
		return StatusData{}, fmt.Errorf("status data: missing state of charge")
	}
	if s.Voltage, ok = GetMapFloat(m, KeyStatusVoltage); !ok {
		return StatusData{}, fmt.Errorf("status data: missing voltage")
	}
	s.Current, _ = GetMapFloat(m, KeyStatusCurrent)
	s.Temperature, _ = GetMapFloat(m, KeyStatusTemperature)
	mode, _ := GetMapUint(m, KeyStatusMode)
	s.Mode = uint8(mode)
	s.UptimeMs, _ = GetMapUint(m, KeyStatusUptime)
	return s, nil
}

func ParseCellData(p *Packet) (CellData, error) {
	if p.Type() != MsgCellData {
		return CellData{}, fmt.Errorf("expected %s, got %s",
			FormatMessageType(MsgCellData), FormatMessageType(p.Type()))
	}
	if err := p.ParseError(); err != nil {
		return CellData{}, err
	}
	m := p.PayloadMap()
	bank, _ := GetMapUint(m, KeyCellBank)
	v, ok := GetMapFloats(m, KeyCellVoltages)
	if !ok {
		return CellData{}, fmt.Errorf("cell data: missing voltages")
	}
	return CellData{Bank: uint8(bank), Voltages: v}, nil
}
