// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package essproto

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/esslink/pkg/wifi"
)

// PacketHandler receives every decoded packet with the source it came from
type PacketHandler func(src wifi.Source, p *Packet)

// Stats counts stream decoding results
type Stats struct {
	Bytes        uint64 `json:"bytes"`
	Packets      uint64 `json:"packets"`
	CRCErrors    uint64 `json:"crcErrors"`
	FrameErrors  uint64 `json:"frameErrors"`
	CBORErrors   uint64 `json:"cborErrors"`
	LastPacketAt int64  `json:"lastPacketAt,omitempty"` // unix ms
}

// StreamParser feeds received fragments through one Decoder per source.
// It is safe for concurrent use.
type StreamParser struct {
	handler PacketHandler
	log     *zap.Logger

	mu       sync.Mutex
	decoders map[wifi.Source]*Decoder
	stats    Stats
}

var _ wifi.SessionParser = (*StreamParser)(nil)

func NewStreamParser(log *zap.Logger, handler PacketHandler) *StreamParser {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamParser{
		handler:  handler,
		log:      log.Named("essproto"),
		decoders: make(map[wifi.Source]*Decoder),
	}
}

// Parse decodes one fragment. Frames split across fragments are completed
// by later calls.
func (s *StreamParser) Parse(src wifi.Source, data []byte) {
	s.mu.Lock()
	dec, ok := s.decoders[src]
	if !ok {
		dec = NewDecoder()
		s.decoders[src] = dec
	}
	s.stats.Bytes += uint64(len(data))
	packets, errs := dec.Feed(data)
	for _, err := range errs {
		s.countError(err)
		s.log.Debug("frame discarded", zap.Stringer("source", src), zap.Error(err))
	}
	for _, p := range packets {
		s.stats.Packets++
		s.stats.LastPacketAt = p.Timestamp().UnixMilli()
		if err := p.ParseError(); err != nil {
			s.stats.CBORErrors++
			s.log.Debug("bad payload", zap.Stringer("source", src), zap.Error(err))
		}
	}
	s.mu.Unlock()

	if s.handler == nil {
		return
	}
	for _, p := range packets {
		if p.ParseError() == nil {
			s.handler(src, p)
		}
	}
}

func (s *StreamParser) countError(err error) {
	if errors.Is(err, ErrCRCMismatch) {
		s.stats.CRCErrors++
		return
	}
	s.stats.FrameErrors++
}

// Reset drops partial frames, for example when a new client connects
func (s *StreamParser) Reset(src wifi.Source) {
	s.mu.Lock()
	if dec, ok := s.decoders[src]; ok {
		dec.Reset()
	}
	s.mu.Unlock()
}

func (s *StreamParser) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
