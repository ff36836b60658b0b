// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/esslink/pkg/radio"
)

// phase is one state of a role driver
type phase int32

const (
	// Shared
	phaseWaitReady phase = iota
	phaseReset
	phaseSetMode

	// Station
	phaseScan
	phaseJoin
	phaseAcquireIP
	phaseSteady

	// Access point
	phaseConfigureAddress
	phaseConfigureAP
	phaseListStations
	phaseCreateServer
	phaseBind
	phaseListen
	phaseAccept

	phaseStopped
)

var phaseNames = [...]string{
	phaseWaitReady:        "wait-ready",
	phaseReset:            "reset",
	phaseSetMode:          "set-mode",
	phaseScan:             "scan",
	phaseJoin:             "join",
	phaseAcquireIP:        "acquire-ip",
	phaseSteady:           "steady",
	phaseConfigureAddress: "configure-address",
	phaseConfigureAP:      "configure-ap",
	phaseListStations:     "list-stations",
	phaseCreateServer:     "create-server",
	phaseBind:             "bind",
	phaseListen:           "listen",
	phaseAccept:           "accept",
	phaseStopped:          "stopped",
}

func (p phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// driver runs one role until its context is cancelled or a fatal error
// forces a system reset. Station and access point share the bring-up
// phases and differ only after the mode is set.
type driver struct {
	role     Role
	radio    radio.Radio
	cfg      Config
	st       *ConnectionState
	log      *zap.Logger
	sleep    Sleeper
	parser   Parser
	resetter Resetter
	notify   func()

	phase      phase
	readyPolls int
}

// Polls of wait-ready before Init is issued again
const initRetryPolls = 50

func (d *driver) run(ctx context.Context) error {
	d.log.Info("role driver started", zap.Stringer("role", d.role))
	defer d.log.Info("role driver exited", zap.Stringer("role", d.role))

	for ctx.Err() == nil {
		next, err := d.step(ctx)
		if err != nil {
			return err
		}
		if next != d.phase {
			d.log.Debug("phase", zap.Stringer("from", d.phase), zap.Stringer("to", next))
			d.phase = next
			d.st.phase.Store(int32(next))
			d.notify()
		}
	}
	return nil
}

func (d *driver) step(ctx context.Context) (phase, error) {
	switch d.phase {
	case phaseWaitReady:
		return d.waitReady(ctx), nil
	case phaseReset:
		return d.reset(ctx)
	case phaseSetMode:
		return d.setMode(ctx)
	case phaseScan:
		return d.scan(ctx)
	case phaseJoin:
		return d.join(ctx)
	case phaseAcquireIP:
		return d.acquireIP()
	case phaseSteady:
		return d.steady(ctx)
	case phaseConfigureAddress:
		return d.configureAddress(ctx)
	case phaseConfigureAP:
		return d.configureAP(ctx)
	case phaseListStations:
		return d.listStations(ctx)
	case phaseCreateServer:
		return d.createServer()
	case phaseBind:
		return d.bind(ctx)
	case phaseListen:
		return d.listen(ctx)
	case phaseAccept:
		return d.accept(ctx)
	}
	return phaseStopped, fmt.Errorf("wifi: driver in invalid phase %v", d.phase)
}

// pause sleeps, ignoring cancellation. The run loop checks the context
// before the next step.
func (d *driver) pause(ctx context.Context, dur time.Duration) {
	_ = d.sleep(ctx, dur)
}

// check classifies o and records failures. Fatal codes trigger the system
// reset and are returned as an error that ends the driver.
func (d *driver) check(op string, o radio.Outcome) (ErrorCode, error) {
	code := Classify(o)
	if code == Ok {
		return Ok, nil
	}
	d.st.setError(code)
	if code.Fatal() {
		return code, d.fatal(op, code)
	}
	d.log.Warn("radio operation failed",
		zap.String("op", op),
		zap.Stringer("outcome", o),
		zap.Stringer("code", code))
	d.notify()
	return code, nil
}

func (d *driver) fatal(op string, code ErrorCode) error {
	err := &OpError{Op: op, Code: code}
	d.st.setError(code)
	d.log.Error("unrecoverable radio error, resetting system", zap.Error(err))
	d.notify()
	d.resetter.SystemReset(err)
	return err
}

func (d *driver) waitReady(ctx context.Context) phase {
	if d.st.radioReady.Load() {
		d.readyPolls = 0
		return phaseReset
	}
	d.readyPolls++
	if d.readyPolls >= initRetryPolls {
		d.readyPolls = 0
		o := d.radio.Init()
		if o.OK() {
			d.st.radioReady.Store(true)
			d.log.Info("radio init succeeded on retry")
			return phaseReset
		}
		d.st.setError(Classify(o))
		d.log.Warn("radio init failed", zap.Stringer("outcome", o))
		d.notify()
	}
	d.pause(ctx, d.cfg.PollInterval)
	return phaseWaitReady
}

func (d *driver) reset(ctx context.Context) (phase, error) {
	if d.st.restartRequested.CompareAndSwap(true, false) {
		d.log.Info("restart requested")
	}
	d.st.stationReady.Store(false)
	d.st.apReady.Store(false)
	d.st.ip.Store("")

	code, err := d.check("reset", d.radio.Reset())
	if err != nil {
		return phaseStopped, err
	}
	if code != Ok {
		d.pause(ctx, d.cfg.ShortDelay)
		return phaseReset, nil
	}
	return phaseSetMode, nil
}

func (d *driver) setMode(ctx context.Context) (phase, error) {
	mode := radio.ModeStation
	if d.role == RoleAccessPoint {
		mode = radio.ModeAccessPoint
	}
	code, err := d.check("set mode", d.radio.SetMode(mode))
	if err != nil {
		return phaseStopped, err
	}
	if code != Ok {
		return d.abort(ctx), nil
	}
	if d.role == RoleAccessPoint {
		return phaseConfigureAddress, nil
	}
	return phaseScan, nil
}

// abort releases whatever the current pass created and starts over from
// a module reset after the short delay
func (d *driver) abort(ctx context.Context) phase {
	d.releaseServer()
	d.pause(ctx, d.cfg.ShortDelay)
	return phaseReset
}

func (d *driver) releaseClient() {
	if d.st.client != nil {
		d.radio.Close(d.st.client)
		d.radio.Delete(d.st.client)
		d.st.client = nil
	}
	if err := d.st.pending.Release(); err != nil {
		d.log.Error("receive buffer", zap.Error(err))
	}
	d.st.peerConnected.Store(false)
}

func (d *driver) releaseServer() {
	d.releaseClient()
	if d.st.server != nil {
		d.radio.Close(d.st.server)
		d.radio.Delete(d.st.server)
		d.st.server = nil
	}
	d.st.apReady.Store(false)
}
