// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"errors"
	"sync/atomic"
)

// ErrBufferReleased is returned when a buffer chain is freed twice
var ErrBufferReleased = errors.New("radio: buffer already released")

// Pool allocates receive buffers and tracks how many chains are still
// owned by someone. A chain counts once, however many segments it holds.
type Pool struct {
	live atomic.Int64
}

// NewPool creates an empty buffer pool
func NewPool() *Pool {
	return &Pool{}
}

// New allocates a single-segment buffer holding a copy of data
func (p *Pool) New(data []byte) *Buffer {
	seg := make([]byte, len(data))
	copy(seg, data)
	p.live.Add(1)
	return &Buffer{pool: p, seg: seg}
}

// Live returns the number of chains not yet freed
func (p *Pool) Live() int64 {
	return p.live.Load()
}

// Buffer is one segment of a received-data chain. The head of a chain owns
// every segment linked behind it.
type Buffer struct {
	pool     *Pool
	seg      []byte
	next     *Buffer
	released bool
}

// Concat links tail behind the last segment of b. Ownership of tail moves
// into b's chain; the caller must not free tail afterwards.
func (b *Buffer) Concat(tail *Buffer) {
	if tail == nil || tail == b {
		return
	}
	last := b
	for last.next != nil {
		last = last.next
	}
	last.next = tail
	if tail.pool != nil {
		tail.pool.live.Add(-1)
	}
	tail.pool = nil
}

// Len returns the byte length of the head segment, or of the whole chain
// when segmentOnly is false
func (b *Buffer) Len(segmentOnly bool) int {
	if segmentOnly {
		return len(b.seg)
	}
	n := 0
	for s := b; s != nil; s = s.next {
		n += len(s.seg)
	}
	return n
}

// Data returns the head segment
func (b *Buffer) Data() []byte {
	return b.seg
}

// Bytes returns the chain contents as one slice. A single-segment chain is
// returned without copying.
func (b *Buffer) Bytes() []byte {
	if b.next == nil {
		return b.seg
	}
	out := make([]byte, 0, b.Len(false))
	for s := b; s != nil; s = s.next {
		out = append(out, s.seg...)
	}
	return out
}

// Segments returns the number of segments in the chain
func (b *Buffer) Segments() int {
	n := 0
	for s := b; s != nil; s = s.next {
		n++
	}
	return n
}

// Free releases the whole chain
func (b *Buffer) Free() error {
	if b.released {
		return ErrBufferReleased
	}
	b.released = true
	if b.pool != nil {
		b.pool.live.Add(-1)
	}
	for s := b; s != nil; {
		next := s.next
		s.seg = nil
		s.next = nil
		s = next
	}
	return nil
}

// Released reports whether Free has been called on this chain head
func (b *Buffer) Released() bool {
	return b.released
}
