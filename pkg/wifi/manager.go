// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wifi keeps the controller connected over the Wi-Fi co-processor.
//
// A Manager owns the shared ConnectionState, consumes radio events and runs
// exactly one role driver at a time: station (join an existing network and
// verify reachability) or access point (host a network and serve a single
// TCP client whose bytes go to the protocol parser).
package wifi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Thermoquad/esslink/pkg/radio"
)

// Options wires the manager to the rest of the system. Nil fields get
// no-op implementations, except Resetter which defaults to logging.
type Options struct {
	Logger    *zap.Logger
	Parser    Parser
	Indicator Indicator
	Resetter  Resetter
	Notifier  Notifier
	Sleep     Sleeper
}

// Manager is the lifecycle controller for the radio
type Manager struct {
	radio radio.Radio
	cfg   Config
	log   *zap.Logger
	opts  Options

	state   ConnectionState
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	exit   error
}

// New creates a manager and registers its event handler with r
func New(r radio.Radio, cfg Config, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Parser == nil {
		opts.Parser = ParserFunc(func(Source, []byte) {})
	}
	if opts.Indicator == nil {
		opts.Indicator = nopIndicator{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	m := &Manager{
		radio: r,
		cfg:   cfg,
		log:   opts.Logger.Named("wifi"),
		opts:  opts,
	}
	if m.opts.Resetter == nil {
		m.opts.Resetter = logResetter{log: m.log}
	}
	m.state.ip.Store("")
	r.SetEventHandler(m.handleEvent)
	return m
}

// Start initializes the radio and launches the driver for role
func (m *Manager) Start(role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done != nil {
		select {
		case <-m.done:
			// Previous driver ended on its own after a fatal error
			m.finishLocked()
		default:
			return ErrAlreadyRunning
		}
	}
	if err := m.cfg.Validate(role); err != nil {
		return err
	}

	m.state.reset(role, m.cfg)
	if o := m.radio.Init(); o.OK() {
		m.state.radioReady.Store(true)
	} else {
		// The driver waits for the module to report ready and retries Init
		m.state.setError(Classify(o))
		m.log.Warn("radio init failed", zap.Stringer("outcome", o))
	}

	if role == RoleAccessPoint {
		m.opts.Indicator.SetIndicator(Blinking(BlinkFast))
	} else {
		m.opts.Indicator.SetIndicator(On())
	}

	d := &driver{
		role:     role,
		radio:    m.radio,
		cfg:      m.cfg,
		st:       &m.state,
		log:      m.log.With(zap.Stringer("role", role)),
		sleep:    m.opts.Sleep,
		parser:   m.opts.Parser,
		resetter: m.opts.Resetter,
		notify:   m.notify,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel, m.done, m.exit = cancel, done, nil
	m.running.Store(true)

	go func() {
		err := d.run(ctx)
		m.state.phase.Store(int32(phaseStopped))
		if err != nil {
			m.exit = err
		}
		m.running.Store(false)
		close(done)
		m.notify()
	}()

	m.log.Info("started", zap.Stringer("role", role))
	m.notify()
	return nil
}

// Stop halts the role driver and releases every radio resource it held.
// Calling Stop when nothing is running is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done == nil {
		return
	}
	m.cancel()
	<-m.done
	m.finishLocked()
	m.log.Info("stopped")
	m.notify()
}

// finishLocked runs after the driver goroutine has exited
func (m *Manager) finishLocked() {
	st := &m.state
	if st.client != nil {
		m.radio.Close(st.client)
		m.radio.Delete(st.client)
		st.client = nil
	}
	if err := st.pending.Release(); err != nil {
		m.log.Error("receive buffer", zap.Error(err))
	}
	if st.server != nil {
		m.radio.Close(st.server)
		m.radio.Delete(st.server)
		st.server = nil
	}
	st.radioReady.Store(false)
	st.apReady.Store(false)
	st.stationReady.Store(false)
	st.peerConnected.Store(false)
	st.restartRequested.Store(false)
	st.phase.Store(int32(phaseStopped))

	m.cancel()
	m.cancel, m.done = nil, nil
	m.opts.Indicator.SetIndicator(Off())
}

// RequestRestart asks the active driver to tear down and start over at its
// next observation point. Repeated requests collapse into one.
func (m *Manager) RequestRestart() {
	if m.state.restartRequested.Swap(true) {
		return
	}
	m.log.Info("restart requested")
	m.notify()
}

// SwitchRole stops the current driver and starts role
func (m *Manager) SwitchRole(role Role) error {
	m.Stop()
	return m.Start(role)
}

// Wait blocks until the current driver exits and returns its exit error.
// It returns nil immediately when nothing is running.
func (m *Manager) Wait() error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	return m.exit
}

// Running reports whether a role driver is active
func (m *Manager) Running() bool {
	return m.running.Load()
}

// State exposes the shared connection record
func (m *Manager) State() *ConnectionState { return &m.state }

// LastError returns the most recent failure code
func (m *Manager) LastError() ErrorCode { return m.state.LastError() }

// Status returns a snapshot of the connection state
func (m *Manager) Status() Status {
	return m.state.snapshot(m.Running())
}

func (m *Manager) notify() {
	m.opts.Notifier.Notify(m.Status())
}

// handleEvent runs on the radio's goroutine. It only flips flags; all
// reaction happens in the driver.
func (m *Manager) handleEvent(ev radio.Event) {
	st := &m.state
	switch e := ev.(type) {
	case radio.InitFinished, radio.ResetDone, radio.Restored:
		st.radioReady.Store(true)
	case radio.ResetStarted:
		st.radioReady.Store(false)
	case radio.CommandTimeout:
		st.setError(Timeout)
		m.log.Warn("radio command timeout")
	case radio.UnsupportedVersion:
		st.setError(NoDevice)
		m.log.Error("radio firmware version not supported")
	case radio.WifiConnected:
		m.log.Info("associated with access point")
	case radio.GotIP:
		m.log.Info("station got ip")
	case radio.WifiDisconnected:
		st.stationReady.Store(false)
		m.log.Info("disassociated from access point")
	case radio.StationJoinResult:
		if !e.Outcome.OK() {
			st.setError(Classify(e.Outcome))
		}
		m.log.Info("join result", zap.Stringer("outcome", e.Outcome))
	case radio.APStationJoined:
		m.log.Info("station joined our network", zap.String("mac", e.MAC))
	case radio.APStationLeft:
		// The single client lives on a station; losing it ends the session
		st.peerConnected.Store(false)
		m.log.Info("station left our network", zap.String("mac", e.MAC))
	case radio.APIPAssigned:
		m.log.Info("station leased address", zap.String("mac", e.MAC), zap.Stringer("ip", e.IP))
	case radio.ServerStatus:
		st.apReady.Store(e.Enabled && e.Outcome.OK())
		m.log.Info("server status",
			zap.Stringer("outcome", e.Outcome),
			zap.Int("port", e.Port),
			zap.Bool("enabled", e.Enabled))
	default:
		m.log.Debug("radio event", zap.Stringer("kind", ev.Kind()))
	}
	m.notify()
}

type logResetter struct {
	log *zap.Logger
}

func (r logResetter) SystemReset(reason error) {
	r.log.Error("system reset requested", zap.Error(reason), zap.Bool("fatal", errors.Is(reason, ErrFatal)))
}
