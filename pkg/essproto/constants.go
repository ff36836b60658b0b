// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package essproto

// Framing bytes
const (
	StartByte  = 0x7E
	EndByte    = 0x7F
	EscapeByte = 0x7D
	EscapeXOR  = 0x20
)

// Size limits
const (
	MaxPacketSize  = 128
	MaxPayloadSize = 122 // MaxPacketSize - start - length - crc(2) - end - slack
	CRCSize        = 2
)

// CRC-16-CCITT parameters
const (
	CRCPolynomial = 0x1021
	CRCInitial    = 0xFFFF
)

// Commands (controller client -> controller)
const (
	MsgStatusRequest  = 0x20
	MsgSetChargeLimit = 0x21
	MsgSetMode        = 0x22
	MsgCellRequest    = 0x23
	MsgPingRequest    = 0x2F
)

// Data (controller -> client)
const (
	MsgStatusData   = 0x30
	MsgCellData     = 0x31
	MsgAck          = 0x3E
	MsgPingResponse = 0x3F
)

// Errors
const (
	MsgErrorInvalidCmd = 0xE0
	MsgErrorRejected   = 0xE1
)

// Operating modes carried by SetMode and StatusData
const (
	ModeStandby   = 0
	ModeCharge    = 1
	ModeDischarge = 2
	ModeAuto      = 3
)

// Payload map keys
const (
	KeyStatusSoC         = 0
	KeyStatusVoltage     = 1
	KeyStatusCurrent     = 2
	KeyStatusTemperature = 3
	KeyStatusMode        = 4
	KeyStatusUptime      = 5

	KeyCellBank     = 0
	KeyCellVoltages = 1

	KeyChargeLimit = 0
	KeyMode        = 0
	KeyAckType     = 0
	KeyUptime      = 0
	KeyErrorCode   = 0
	KeyErrorDetail = 1
)
