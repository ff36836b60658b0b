// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package essproto

import (
	"errors"
	"fmt"
)

var (
	ErrCRCMismatch = errors.New("crc mismatch")
	ErrBadLength   = errors.New("invalid length")
	ErrTruncated   = errors.New("frame truncated")
	ErrMissingEnd  = errors.New("missing end byte")
	ErrStrayEscape = errors.New("escape before framing byte")
	ErrEmptyFrame  = errors.New("empty frame")
)

type decodeState int

const (
	stateIdle decodeState = iota
	stateLength
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// Decoder reassembles packets from a byte stream. Frames may be split
// across any number of writes.
type Decoder struct {
	state   decodeState
	escaped bool
	length  int
	buf     []byte
	crc     uint16
}

func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, MaxPacketSize)}
}

// Reset drops any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.escaped = false
	d.length = 0
	d.buf = d.buf[:0]
	d.crc = 0
}

// InFrame reports whether a partial frame is buffered
func (d *Decoder) InFrame() bool { return d.state != stateIdle }

// DecodeByte consumes one byte. It returns a packet when a frame
// completes, or an error when a frame is discarded.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	switch b {
	case StartByte:
		wasInFrame := d.InFrame()
		d.Reset()
		d.state = stateLength
		if wasInFrame {
			return nil, ErrTruncated
		}
		return nil, nil
	case EndByte:
		if d.state == stateIdle {
			return nil, nil
		}
		return d.finish()
	}

	if d.state == stateIdle {
		return nil, nil
	}
	if b == EscapeByte {
		if d.escaped {
			d.Reset()
			return nil, ErrStrayEscape
		}
		d.escaped = true
		return nil, nil
	}
	if d.escaped {
		b ^= EscapeXOR
		d.escaped = false
	}

	switch d.state {
	case stateLength:
		if b == 0 || int(b) > MaxPayloadSize {
			n := b
			d.Reset()
			return nil, fmt.Errorf("%w: %d", ErrBadLength, n)
		}
		d.length = int(b)
		d.state = statePayload
	case statePayload:
		d.buf = append(d.buf, b)
		if len(d.buf) == d.length {
			d.state = stateCRC1
		}
	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd
	case stateEnd:
		d.Reset()
		return nil, ErrMissingEnd
	}
	return nil, nil
}

func (d *Decoder) finish() (*Packet, error) {
	defer d.Reset()
	if d.escaped {
		return nil, ErrStrayEscape
	}
	if d.state == stateLength {
		return nil, ErrEmptyFrame
	}
	if d.state != stateEnd {
		return nil, ErrTruncated
	}

	body := make([]byte, 0, 1+d.length)
	body = append(body, byte(d.length))
	body = append(body, d.buf...)
	if got := CalculateCRC(body); got != d.crc {
		return nil, fmt.Errorf("%w: got 0x%04X, frame 0x%04X", ErrCRCMismatch, got, d.crc)
	}
	payload := append([]byte(nil), d.buf...)
	return newDecodedPacket(payload, d.crc), nil
}

// Feed decodes a chunk, returning every packet that completed in it and
// every frame error seen
func (d *Decoder) Feed(data []byte) ([]*Packet, []error) {
	var packets []*Packet
	var errs []error
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets, errs
}
