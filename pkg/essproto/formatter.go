// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package essproto

import (
	"fmt"
	"strings"
)

// FormatPacket renders a packet for logs and terminals
func FormatPacket(p *Packet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (0x%02X) len=%d crc=0x%04X\n",
		p.Timestamp().Format("15:04:05.000"), FormatMessageType(p.Type()), p.Type(), p.Length(), p.CRC())
	if err := p.ParseError(); err != nil {
		fmt.Fprintf(&b, "  Parse error: %v\n", err)
		return b.String()
	}
	b.WriteString(FormatPayloadMap(p.Type(), p.PayloadMap()))
	return b.String()
}

func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgStatusRequest:
		return "STATUS_REQUEST"
	case MsgSetChargeLimit:
		return "SET_CHARGE_LIMIT"
	case MsgSetMode:
		return "SET_MODE"
	case MsgCellRequest:
		return "CELL_REQUEST"
	case MsgPingRequest:
		return "PING_REQUEST"
	case MsgStatusData:
		return "STATUS_DATA"
	case MsgCellData:
		return "CELL_DATA"
	case MsgAck:
		return "ACK"
	case MsgPingResponse:
		return "PING_RESPONSE"
	case MsgErrorInvalidCmd:
		return "ERROR_INVALID_CMD"
	case MsgErrorRejected:
		return "ERROR_REJECTED"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", msgType)
	}
}

// FormatPayloadMap describes the payload fields of a known message type
func FormatPayloadMap(msgType uint8, m map[int]interface{}) string {
	switch msgType {
	case MsgSetChargeLimit:
		limit, _ := GetMapUint(m, KeyChargeLimit)
		return fmt.Sprintf("  Charge limit: %d%%\n", limit)

	case MsgSetMode:
		mode, _ := GetMapUint(m, KeyMode)
		return fmt.Sprintf("  Mode: %s (%d)\n", FormatMode(uint8(mode)), mode)

	case MsgCellRequest:
		bank, _ := GetMapUint(m, KeyCellBank)
		return fmt.Sprintf("  Bank: %d\n", bank)

	case MsgStatusData:
		soc, _ := GetMapFloat(m, KeyStatusSoC)
		v, _ := GetMapFloat(m, KeyStatusVoltage)
		a, _ := GetMapFloat(m, KeyStatusCurrent)
		temp, _ := GetMapFloat(m, KeyStatusTemperature)
		mode, _ := GetMapUint(m, KeyStatusMode)
		return fmt.Sprintf("  SoC: %.1f%%, %.2f V, %.2f A, %.1f°C, Mode: %s\n",
			soc, v, a, temp, FormatMode(uint8(mode)))

	case MsgCellData:
		bank, _ := GetMapUint(m, KeyCellBank)
		cells, _ := GetMapFloats(m, KeyCellVoltages)
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = fmt.Sprintf("%.3f", c)
		}
		return fmt.Sprintf("  Bank %d: [%s] V\n", bank, strings.Join(parts, " "))

	case MsgAck:
		t, _ := GetMapUint(m, KeyAckType)
		return fmt.Sprintf("  Acknowledged: %s\n", FormatMessageType(uint8(t)))

	case MsgPingResponse:
		up, _ := GetMapUint(m, KeyUptime)
		return fmt.Sprintf("  Uptime: %s\n", formatDuration(up))

	case MsgErrorInvalidCmd, MsgErrorRejected:
		code, _ := GetMapInt(m, KeyErrorCode)
		if detail, ok := GetMapString(m, KeyErrorDetail); ok {
			return fmt.Sprintf("  Code: %d, %s\n", code, detail)
		}
		return fmt.Sprintf("  Code: %d\n", code)
	}
	return ""
}

func FormatMode(mode uint8) string {
	switch mode {
	case ModeStandby:
		return "STANDBY"
	case ModeCharge:
		return "CHARGE"
	case ModeDischarge:
		return "DISCHARGE"
	case ModeAuto:
		return "AUTO"
	default:
		return "UNKNOWN"
	}
}

func formatDuration(ms uint64) string {
	s := ms / 1000
	switch {
	case s < 60:
		return fmt.Sprintf("%d.%03ds", s, ms%1000)
	case s < 3600:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	case s < 86400:
		return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
	default:
		return fmt.Sprintf("%dd %dh", s/86400, (s%86400)/3600)
	}
}
