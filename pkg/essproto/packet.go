// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package essproto

import "time"

// Packet is one controller protocol frame
type Packet struct {
	length      uint8
	cborPayload []byte // [msg_type, payload_map]
	crc         uint16
	timestamp   time.Time

	msgType    uint8
	payloadMap map[int]interface{}
	parsed     bool
	parseErr   error
}

func newDecodedPacket(cborPayload []byte, crc uint16) *Packet {
	return &Packet{
		length:      uint8(len(cborPayload)),
		cborPayload: cborPayload,
		crc:         crc,
		timestamp:   time.Now(),
	}
}

// NewPacket builds an outbound packet. Encode computes the CBOR and CRC.
func NewPacket(msgType uint8, payload map[int]interface{}) *Packet {
	return &Packet{
		msgType:    msgType,
		payloadMap: payload,
		parsed:     true,
		timestamp:  time.Now(),
	}
}

func (p *Packet) ensureParsed() {
	if p.parsed {
		return
	}
	p.parsed = true
	p.msgType, p.payloadMap, p.parseErr = ParseCBORMessage(p.cborPayload)
}

// Length returns the CBOR payload length of a decoded packet
func (p *Packet) Length() uint8 { return p.length }

// Type returns the message type
func (p *Packet) Type() uint8 {
	p.ensureParsed()
	return p.msgType
}

// Payload returns the raw CBOR bytes of a decoded packet
func (p *Packet) Payload() []byte { return p.cborPayload }

// PayloadMap returns the decoded payload map, nil for empty payloads
func (p *Packet) PayloadMap() map[int]interface{} {
	p.ensureParsed()
	return p.payloadMap
}

// ParseError reports a CBOR structure error in a decoded packet
func (p *Packet) ParseError() error {
	p.ensureParsed()
	return p.parseErr
}

func (p *Packet) CRC() uint16 { return p.crc }

func (p *Packet) Timestamp() time.Time { return p.timestamp }

// IsCommand reports whether the packet is a client command
func (p *Packet) IsCommand() bool {
	t := p.Type()
	return t >= 0x20 && t <= 0x2F
}

// IsError reports whether the packet is an error response
func (p *Packet) IsError() bool {
	return p.Type() >= 0xE0
}
