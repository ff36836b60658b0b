// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package essproto

import "fmt"

// CalculateCRC computes CRC-16-CCITT over data
func CalculateCRC(data []byte) uint16 {
	crc := uint16(CRCInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ CRCPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Encode renders a packet as a framed, byte-stuffed wire frame
func Encode(p *Packet) ([]byte, error) {
	payload, err := encodeCBORMessage(p.Type(), p.PayloadMap())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", FormatMessageType(p.Type()), err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("encode %s: payload %d bytes exceeds %d",
			FormatMessageType(p.Type()), len(payload), MaxPayloadSize)
	}

	body := make([]byte, 0, 1+len(payload)+CRCSize)
	body = append(body, byte(len(payload)))
	body = append(body, payload...)
	crc := CalculateCRC(body)
	body = append(body, byte(crc>>8), byte(crc))

	out := make([]byte, 0, len(body)*2+2)
	out = append(out, StartByte)
	out = append(out, stuffBytes(body)...)
	out = append(out, EndByte)
	return out, nil
}

// MustEncode is Encode for packets built by this package's constructors
func MustEncode(p *Packet) []byte {
	b, err := Encode(p)
	if err != nil {
		panic(err)
	}
	return b
}

func needsEscape(b byte) bool {
	return b == StartByte || b == EndByte || b == EscapeByte
}

func stuffBytes(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if needsEscape(b) {
			out = append(out, EscapeByte, b^EscapeXOR)
			continue
		}
		out = append(out, b)
	}
	return out
}
