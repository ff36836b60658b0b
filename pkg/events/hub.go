// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package events streams link status and decoded controller traffic to
// remote monitors over a websocket API.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/esslink/pkg/wifi"
)

// EventType classifies an event for subscribers
type EventType string

const (
	EventStatus    EventType = "status"    // wifi.Status
	EventTelemetry EventType = "telemetry" // essproto.StatusData
	EventPacket    EventType = "packet"    // PacketInfo
	EventControl   EventType = "control"   // ControlResult, sent to the requesting client only
)

const subscriberBuffer = 64

// Event is the JSON envelope sent to websocket clients
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Decode unmarshals the event data into v
func (e Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s event: %w", e.Type, err)
	}
	return nil
}

// PacketInfo describes one decoded controller packet
type PacketInfo struct {
	Source  string `json:"source"`
	Type    uint8  `json:"type"`
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
}

func NewEvent(t EventType, v interface{}) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s event: %w", t, err)
	}
	return Event{Type: t, Timestamp: time.Now().UTC(), Data: data}, nil
}

type subscriber struct {
	ch chan Event
}

// Hub fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	last    map[EventType]Event
	dropped uint64
}

var _ wifi.Notifier = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		last: make(map[EventType]Event),
	}
}

// Subscribe registers a subscriber. The latest status event, if any, is
// queued first. The returned function unsubscribes and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}
	h.mu.Lock()
	if ev, ok := h.last[EventStatus]; ok {
		s.ch <- ev
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

// Publish sends ev to every subscriber
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[ev.Type] = ev
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			h.dropped++
		}
	}
}

// PublishValue wraps v in an event of type t and publishes it
func (h *Hub) PublishValue(t EventType, v interface{}) error {
	ev, err := NewEvent(t, v)
	if err != nil {
		return err
	}
	h.Publish(ev)
	return nil
}

// Notify publishes a link status snapshot
func (h *Hub) Notify(st wifi.Status) {
	// wifi.Status always marshals
	_ = h.PublishValue(EventStatus, st)
}

// Last returns the most recent event of type t
func (h *Hub) Last(t EventType) (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ev, ok := h.last[t]
	return ev, ok
}

// Len returns the subscriber count
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
