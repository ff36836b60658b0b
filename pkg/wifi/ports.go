// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import "time"

// Source tags the origin of data handed to a Parser
type Source int

const (
	SourceWifi Source = iota
	SourceConsole
)

func (s Source) String() string {
	switch s {
	case SourceWifi:
		return "wifi"
	case SourceConsole:
		return "console"
	default:
		return "unknown"
	}
}

// Parser consumes received application data. data is only valid for the
// duration of the call; implementations copy what they keep.
type Parser interface {
	Parse(src Source, data []byte)
}

// ParserFunc adapts a function to the Parser interface
type ParserFunc func(src Source, data []byte)

func (f ParserFunc) Parse(src Source, data []byte) { f(src, data) }

// IndicatorMode is the visual state of the status LED
type IndicatorMode int

const (
	IndicatorOff IndicatorMode = iota
	IndicatorOn
	IndicatorBlinking
)

// Indication is one status LED setting
type Indication struct {
	Mode IndicatorMode
	Rate time.Duration // blink period, Blinking only
}

// Blink rates used by the manager
const (
	BlinkFast = 200 * time.Millisecond
	BlinkSlow = time.Second
)

func Off() Indication { return Indication{Mode: IndicatorOff} }

func On() Indication { return Indication{Mode: IndicatorOn} }

func Blinking(rate time.Duration) Indication {
	return Indication{Mode: IndicatorBlinking, Rate: rate}
}

func (i Indication) String() string {
	switch i.Mode {
	case IndicatorOn:
		return "on"
	case IndicatorBlinking:
		return "blinking(" + i.Rate.String() + ")"
	default:
		return "off"
	}
}

// Indicator drives the board's status LED
type Indicator interface {
	SetIndicator(Indication)
}

// Resetter performs a full system reset. It is called from the driver
// goroutine and must not call back into the Manager synchronously.
type Resetter interface {
	SystemReset(reason error)
}

// Notifier receives status snapshots after every observable change.
// Notify must not block.
type Notifier interface {
	Notify(Status)
}

type nopIndicator struct{}

func (nopIndicator) SetIndicator(Indication) {}

type nopNotifier struct{}

func (nopNotifier) Notify(Status) {}

// SessionParser is a Parser that keeps framing state per source. The
// access point driver drops that state when a new client connects.
type SessionParser interface {
	Parser
	Reset(src Source)
}
