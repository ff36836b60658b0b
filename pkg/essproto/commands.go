// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package essproto

// Builders store values with the types the CBOR decoder produces, so
// locally built and decoded packets read the same through the map helpers.

// Command builders

func NewStatusRequest() *Packet {
	return NewPacket(MsgStatusRequest, nil)
}

func NewCellRequest(bank uint8) *Packet {
	return NewPacket(MsgCellRequest, map[int]interface{}{KeyCellBank: uint64(bank)})
}

// NewSetChargeLimit caps the state of charge, in percent
func NewSetChargeLimit(percent uint8) *Packet {
	if percent > 100 {
		percent = 100
	}
	return NewPacket(MsgSetChargeLimit, map[int]interface{}{KeyChargeLimit: uint64(percent)})
}

func NewSetMode(mode uint8) *Packet {
	return NewPacket(MsgSetMode, map[int]interface{}{KeyMode: uint64(mode)})
}

func NewPingRequest() *Packet {
	return NewPacket(MsgPingRequest, nil)
}

// Response builders

func NewPingResponse(uptimeMs uint64) *Packet {
	return NewPacket(MsgPingResponse, map[int]interface{}{KeyUptime: uptimeMs})
}

func NewAck(cmdType uint8) *Packet {
	return NewPacket(MsgAck, map[int]interface{}{KeyAckType: uint64(cmdType)})
}

func NewErrorInvalidCmd(code int64) *Packet {
	return NewPacket(MsgErrorInvalidCmd, map[int]interface{}{KeyErrorCode: code})
}

func NewErrorRejected(code int64, detail string) *Packet {
	m := map[int]interface{}{KeyErrorCode: code}
	if detail != "" {
		m[KeyErrorDetail] = detail
	}
	return NewPacket(MsgErrorRejected, m)
}

func NewStatusData(s StatusData) *Packet {
	return NewPacket(MsgStatusData, map[int]interface{}{
		KeyStatusSoC:         s.SoC,
		KeyStatusVoltage:     s.Voltage,
		KeyStatusCurrent:     s.Current,
		KeyStatusTemperature: s.Temperature,
		KeyStatusMode:        uint64(s.Mode),
		KeyStatusUptime:      s.UptimeMs,
	})
}

func NewCellData(c CellData) *Packet {
	return NewPacket(MsgCellData, map[int]interface{}{
		KeyCellBank:     uint64(c.Bank),
		KeyCellVoltages: floatArray(c.Voltages),
	})
}

func floatArray(v []float64) []interface{} {
	out := make([]interface{}, len(v))
	for i, f := range v {
		out[i] = f
	}
	return out
}
