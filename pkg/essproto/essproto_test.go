// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package essproto

import (
	"errors"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/esslink/pkg/wifi"
)

// ============================================================
// Helpers
// ============================================================

// rawFrame frames an arbitrary CBOR body with a correct CRC
func rawFrame(payload []byte) []byte {
	body := append([]byte{byte(len(payload))}, payload...)
	crc := CalculateCRC(body)
	body = append(body, byte(crc>>8), byte(crc))
	out := append([]byte{StartByte}, stuffBytes(body)...)
	return append(out, EndByte)
}

func decodeAll(t *testing.T, data []byte) []*Packet {
	t.Helper()
	packets, errs := NewDecoder().Feed(data)
	if len(errs) != 0 {
		t.Fatalf("unexpected decode errors: %v", errs)
	}
	return packets
}

func sampleStatus() StatusData {
	return StatusData{SoC: 76.5, Voltage: 51.2, Current: -12.25, Temperature: 24.5, Mode: ModeDischarge, UptimeMs: 90061000}
}

// ============================================================
// CRC
// ============================================================

func TestCalculateCRC(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"empty", nil, 0xFFFF},
		{"check value", []byte("123456789"), 0x29B1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateCRC(tt.data); got != tt.want {
				t.Errorf("CalculateCRC = 0x%04X, want 0x%04X", got, tt.want)
			}
		})
	}
}

// ============================================================
// Encode / Decode
// ============================================================

func TestEncodeDecode(t *testing.T) {
	packets := []*Packet{
		NewStatusRequest(),
		NewPingRequest(),
		NewPingResponse(123456),
		NewSetChargeLimit(80),
		NewSetMode(ModeCharge),
		NewAck(MsgSetMode),
		NewErrorRejected(3, "limit"),
		NewStatusData(sampleStatus()),
		NewCellData(CellData{Bank: 1, Voltages: []float64{3.301, 3.298, 3.305, 3.299}}),
	}
	for _, p := range packets {
		t.Run(FormatMessageType(p.Type()), func(t *testing.T) {
			frame, err := Encode(p)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if frame[0] != StartByte || frame[len(frame)-1] != EndByte {
				t.Fatalf("frame not delimited: % X", frame)
			}
			got := decodeAll(t, frame)
			if len(got) != 1 {
				t.Fatalf("decoded %d packets, want 1", len(got))
			}
			if got[0].Type() != p.Type() {
				t.Errorf("type = 0x%02X, want 0x%02X", got[0].Type(), p.Type())
			}
			if err := got[0].ParseError(); err != nil {
				t.Errorf("ParseError: %v", err)
			}
			if len(got[0].PayloadMap()) != len(p.PayloadMap()) {
				t.Errorf("payload keys = %d, want %d", len(got[0].PayloadMap()), len(p.PayloadMap()))
			}
		})
	}
}

func TestEncodeStuffsFramingBytes(t *testing.T) {
	// 0x7E as a payload value must not appear raw inside the frame
	frame := MustEncode(NewAck(StartByte))
	for i, b := range frame[1 : len(frame)-1] {
		if b == StartByte || b == EndByte {
			t.Fatalf("raw framing byte 0x%02X at %d: % X", b, i+1, frame)
		}
	}
	got := decodeAll(t, frame)
	if len(got) != 1 {
		t.Fatalf("decoded %d packets", len(got))
	}
	if v, _ := GetMapUint(got[0].PayloadMap(), KeyAckType); v != StartByte {
		t.Errorf("ack type = 0x%02X, want 0x7E", v)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	cells := make([]float64, 64)
	_, err := Encode(NewCellData(CellData{Voltages: cells}))
	if err == nil {
		t.Fatal("expected size error")
	}
}

// ============================================================
// Decoder state machine
// ============================================================

func TestDecoderSurvivesEverySplit(t *testing.T) {
	frame := MustEncode(NewStatusData(sampleStatus()))
	for cut := 0; cut <= len(frame); cut++ {
		dec := NewDecoder()
		a, errsA := dec.Feed(frame[:cut])
		b, errsB := dec.Feed(frame[cut:])
		if len(errsA)+len(errsB) != 0 {
			t.Fatalf("cut %d: errors %v %v", cut, errsA, errsB)
		}
		if n := len(a) + len(b); n != 1 {
			t.Fatalf("cut %d: decoded %d packets", cut, n)
		}
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	stream := append(MustEncode(NewPingRequest()), MustEncode(NewSetChargeLimit(90))...)
	dec := NewDecoder()
	var got []*Packet
	for _, b := range stream {
		p, err := dec.DecodeByte(b)
		if err != nil {
			t.Fatalf("DecodeByte: %v", err)
		}
		if p != nil {
			got = append(got, p)
		}
	}
	if len(got) != 2 || got[0].Type() != MsgPingRequest || got[1].Type() != MsgSetChargeLimit {
		t.Fatalf("got %d packets", len(got))
	}
}

func TestDecoderIgnoresNoiseBetweenFrames(t *testing.T) {
	stream := []byte{0x00, 0x41, EndByte, 0x42}
	stream = append(stream, MustEncode(NewPingRequest())...)
	stream = append(stream, 0x10, 0x11)
	if got := decodeAll(t, stream); len(got) != 1 {
		t.Fatalf("decoded %d packets", len(got))
	}
}

func TestDecoderErrors(t *testing.T) {
	good := MustEncode(NewPingRequest())

	corrupt := append([]byte(nil), good...)
	corrupt[len(corrupt)-2] ^= 0x01

	truncated := append(append([]byte(nil), good[:len(good)-3]...), good...)

	tests := []struct {
		name    string
		data    []byte
		want    error
		packets int
	}{
		{"crc mismatch", corrupt, ErrCRCMismatch, 0},
		{"restart mid frame", truncated, ErrTruncated, 1},
		{"zero length", []byte{StartByte, 0x00}, ErrBadLength, 0},
		{"oversized length", []byte{StartByte, 0x7C}, ErrBadLength, 0},
		{"empty frame", []byte{StartByte, EndByte}, ErrEmptyFrame, 0},
		{"double escape", []byte{StartByte, EscapeByte, EscapeByte}, ErrStrayEscape, 0},
		{"early end", []byte{StartByte, 0x03, 0x82, EndByte}, ErrTruncated, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packets, errs := NewDecoder().Feed(tt.data)
			if len(errs) != 1 || !errors.Is(errs[0], tt.want) {
				t.Fatalf("errors = %v, want %v", errs, tt.want)
			}
			if len(packets) != tt.packets {
				t.Errorf("packets = %d, want %d", len(packets), tt.packets)
			}
		})
	}
}

func TestDecoderMissingEnd(t *testing.T) {
	frame := MustEncode(NewPingRequest())
	frame[len(frame)-1] = 0x00
	frame = append(frame, MustEncode(NewPingRequest())...)
	packets, errs := NewDecoder().Feed(frame)
	if len(errs) != 1 || !errors.Is(errs[0], ErrMissingEnd) {
		t.Fatalf("errors = %v", errs)
	}
	if len(packets) != 1 {
		t.Errorf("decoder did not recover, packets = %d", len(packets))
	}
}

// ============================================================
// CBOR
// ============================================================

func TestParseCBORMessageErrors(t *testing.T) {
	mk := func(v interface{}) []byte {
		b, err := cbor.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not an array", mk(map[int]int{1: 2})},
		{"one element", mk([]interface{}{uint64(1)})},
		{"string type", mk([]interface{}{"x", nil})},
		{"type too large", mk([]interface{}{uint64(300), nil})},
		{"payload not a map", mk([]interface{}{uint64(1), "x"})},
		{"string key", mk([]interface{}{uint64(1), map[string]int{"a": 1}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseCBORMessage(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBadPayloadSurfacesAsParseError(t *testing.T) {
	body, _ := cbor.Marshal([]interface{}{"bogus"})
	got := decodeAll(t, rawFrame(body))
	if len(got) != 1 {
		t.Fatalf("decoded %d packets", len(got))
	}
	if got[0].ParseError() == nil {
		t.Error("expected parse error")
	}
}

func TestMapHelpers(t *testing.T) {
	m := map[int]interface{}{
		0: uint64(7),
		1: int64(-3),
		2: 1.5,
		3: true,
		4: "hi",
		5: []interface{}{uint64(3), 3.25},
	}
	if v, ok := GetMapUint(m, 0); !ok || v != 7 {
		t.Errorf("GetMapUint = %d, %v", v, ok)
	}
	if _, ok := GetMapUint(m, 1); ok {
		t.Error("GetMapUint accepted a negative value")
	}
	if v, ok := GetMapInt(m, 1); !ok || v != -3 {
		t.Errorf("GetMapInt = %d, %v", v, ok)
	}
	if v, ok := GetMapFloat(m, 0); !ok || v != 7 {
		t.Errorf("GetMapFloat(uint) = %v, %v", v, ok)
	}
	if v, ok := GetMapBool(m, 3); !ok || !v {
		t.Errorf("GetMapBool = %v, %v", v, ok)
	}
	if v, ok := GetMapString(m, 4); !ok || v != "hi" {
		t.Errorf("GetMapString = %q, %v", v, ok)
	}
	if v, ok := GetMapFloats(m, 5); !ok || len(v) != 2 || v[1] != 3.25 {
		t.Errorf("GetMapFloats = %v, %v", v, ok)
	}
	if _, ok := GetMapUint(nil, 0); ok {
		t.Error("nil map returned a value")
	}
}

// ============================================================
// Typed views
// ============================================================

func TestParseStatusData(t *testing.T) {
	want := sampleStatus()
	got := decodeAll(t, MustEncode(NewStatusData(want)))
	s, err := ParseStatusData(got[0])
	if err != nil {
		t.Fatalf("ParseStatusData: %v", err)
	}
	if s != want {
		t.Errorf("status = %+v, want %+v", s, want)
	}

	if _, err := ParseStatusData(NewPingRequest()); err == nil {
		t.Error("ParseStatusData accepted a ping")
	}
	if _, err := ParseStatusData(NewPacket(MsgStatusData, map[int]interface{}{KeyStatusVoltage: 50.0})); err == nil {
		t.Error("ParseStatusData accepted a status without SoC")
	}
}

func TestParseCellData(t *testing.T) {
	want := CellData{Bank: 2, Voltages: []float64{3.3, 3.31}}
	got := decodeAll(t, MustEncode(NewCellData(want)))
	c, err := ParseCellData(got[0])
	if err != nil {
		t.Fatalf("ParseCellData: %v", err)
	}
	if c.Bank != 2 || len(c.Voltages) != 2 || c.Voltages[1] != 3.31 {
		t.Errorf("cells = %+v", c)
	}
}

func TestSetChargeLimitClamps(t *testing.T) {
	if v, _ := GetMapUint(NewSetChargeLimit(150).PayloadMap(), KeyChargeLimit); v != 100 {
		t.Errorf("limit = %d, want 100", v)
	}
}

// ============================================================
// Formatting
// ============================================================

func TestFormatPacket(t *testing.T) {
	tests := []struct {
		p    *Packet
		want []string
	}{
		{NewStatusData(sampleStatus()), []string{"STATUS_DATA", "SoC: 76.5%", "DISCHARGE"}},
		{NewAck(MsgSetMode), []string{"ACK", "Acknowledged: SET_MODE"}},
		{NewPingResponse(90061000), []string{"PING_RESPONSE", "1d 1h"}},
		{NewErrorRejected(2, "over limit"), []string{"ERROR_REJECTED", "Code: 2, over limit"}},
		{NewPacket(0x99, nil), []string{"UNKNOWN_0x99"}},
	}
	for _, tt := range tests {
		out := FormatPacket(tt.p)
		for _, w := range tt.want {
			if !strings.Contains(out, w) {
				t.Errorf("FormatPacket missing %q in:\n%s", w, out)
			}
		}
	}
}

// ============================================================
// StreamParser
// ============================================================

func TestStreamParser(t *testing.T) {
	type got struct {
		src wifi.Source
		typ uint8
	}
	var seen []got
	sp := NewStreamParser(nil, func(src wifi.Source, p *Packet) {
		seen = append(seen, got{src, p.Type()})
	})

	status := MustEncode(NewStatusData(sampleStatus()))
	half := len(status) / 2

	// Interleaved sources keep separate framing state
	sp.Parse(wifi.SourceWifi, status[:half])
	sp.Parse(wifi.SourceConsole, MustEncode(NewPingRequest()))
	sp.Parse(wifi.SourceWifi, status[half:])

	bad := MustEncode(NewPingRequest())
	bad[2] ^= 0x01
	sp.Parse(wifi.SourceWifi, bad)

	body, _ := cbor.Marshal([]interface{}{"bogus"})
	sp.Parse(wifi.SourceWifi, rawFrame(body))

	if len(seen) != 2 {
		t.Fatalf("handled %d packets, want 2: %+v", len(seen), seen)
	}
	if seen[0] != (got{wifi.SourceConsole, MsgPingRequest}) || seen[1] != (got{wifi.SourceWifi, MsgStatusData}) {
		t.Errorf("seen = %+v", seen)
	}

	st := sp.Stats()
	if st.Packets != 3 || st.CBORErrors != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.CRCErrors+st.FrameErrors != 1 {
		t.Errorf("frame errors = %+v", st)
	}
	if st.LastPacketAt == 0 {
		t.Error("LastPacketAt not set")
	}
}

func TestStreamParserReset(t *testing.T) {
	var n int
	sp := NewStreamParser(nil, func(wifi.Source, *Packet) { n++ })
	frame := MustEncode(NewPingRequest())
	sp.Parse(wifi.SourceWifi, frame[:3])
	sp.Reset(wifi.SourceWifi)
	sp.Parse(wifi.SourceWifi, frame[3:])
	sp.Parse(wifi.SourceWifi, frame)
	if n != 1 {
		t.Errorf("handled %d packets, want 1", n)
	}
}
