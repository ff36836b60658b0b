// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/esslink/pkg/radio"
)

type indicatorRecorder struct {
	mu   sync.Mutex
	last Indication
	n    int
}

func (i *indicatorRecorder) SetIndicator(ind Indication) {
	i.mu.Lock()
	i.last = ind
	i.n++
	i.mu.Unlock()
}

func (i *indicatorRecorder) get() Indication {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.last
}

type notifyRecorder struct {
	mu   sync.Mutex
	last Status
	n    int
}

func (n *notifyRecorder) Notify(s Status) {
	n.mu.Lock()
	n.last = s
	n.n++
	n.mu.Unlock()
}

func (n *notifyRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.n
}

func fastConfig() Config {
	cfg := testConfig()
	cfg.ShortDelay = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.Scan.LongDelay = time.Millisecond
	cfg.Join.LongDelay = time.Millisecond
	cfg.NetCheck.LongDelay = time.Millisecond
	return cfg
}

func newTestManager(r *fakeRadio) (*Manager, *indicatorRecorder, *resetRecorder, *notifyRecorder) {
	ind := &indicatorRecorder{}
	res := &resetRecorder{}
	not := &notifyRecorder{}
	m := New(r, fastConfig(), Options{
		Indicator: ind,
		Resetter:  res,
		Notifier:  not,
	})
	return m, ind, res, not
}

// ============================================================
// Lifecycle
// ============================================================

func TestManager_StationReachesReady(t *testing.T) {
	r := newFakeRadio()
	r.scans = [][]radio.AccessPoint{{target}}
	m, ind, _, not := newTestManager(r)

	if err := m.Start(RoleStation); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	waitFor(t, "station ready", func() bool { return m.Status().StationReady })
	st := m.Status()
	if !st.Running || st.Role != RoleStation || st.Phase != "steady" {
		t.Errorf("unexpected status %+v", st)
	}
	if !st.Connected() {
		t.Error("Connected() should be true")
	}
	if ind.get().Mode != IndicatorOn {
		t.Errorf("indicator = %v, want on", ind.get())
	}
	if not.count() == 0 {
		t.Error("notifier never called")
	}
}

func TestManager_StartTwice(t *testing.T) {
	m, _, _, _ := newTestManager(newFakeRadio())
	if err := m.Start(RoleStation); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	if err := m.Start(RoleAccessPoint); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestManager_StartValidatesConfig(t *testing.T) {
	r := newFakeRadio()
	cfg := fastConfig()
	cfg.TargetSSID = ""
	m := New(r, cfg, Options{})
	if err := m.Start(RoleStation); err == nil {
		m.Stop()
		t.Fatal("expected an error without a station SSID")
	}
	if m.Running() {
		t.Error("manager should not be running")
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	r := newFakeRadio()
	m, ind, _, _ := newTestManager(r)

	m.Stop()

	if err := m.Start(RoleAccessPoint); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "ap ready", func() bool { return m.Status().APReady })
	if ind.get().Mode != IndicatorBlinking {
		t.Errorf("indicator = %v, want blinking", ind.get())
	}

	m.Stop()
	m.Stop()

	st := m.Status()
	if st.Running || st.APReady || st.PeerConnected || st.RadioReady {
		t.Errorf("status after stop = %+v", st)
	}
	if m.state.server != nil || m.state.client != nil {
		t.Error("sockets should be released after stop")
	}
	if ind.get().Mode != IndicatorOff {
		t.Errorf("indicator = %v, want off", ind.get())
	}
}

func TestManager_SwitchRole(t *testing.T) {
	r := newFakeRadio()
	m, _, _, _ := newTestManager(r)

	if err := m.Start(RoleAccessPoint); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "ap ready", func() bool { return m.Status().APReady })

	r.mu.Lock()
	r.scans = [][]radio.AccessPoint{{target}}
	r.mu.Unlock()
	if err := m.SwitchRole(RoleStation); err != nil {
		t.Fatalf("SwitchRole: %v", err)
	}
	defer m.Stop()

	waitFor(t, "station ready", func() bool { return m.Status().StationReady })
	if m.Status().APReady {
		t.Error("apReady should be cleared after switching role")
	}
}

func TestManager_FatalExitResetsOnce(t *testing.T) {
	r := newFakeRadio()
	r.scans = [][]radio.AccessPoint{{target}}
	r.joins = []radio.Outcome{radio.OutcomeNoMemory}
	m, _, res, _ := newTestManager(r)

	if err := m.Start(RoleStation); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := m.Wait()
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("Wait = %v, want ErrFatal", err)
	}
	if res.count() != 1 {
		t.Errorf("SystemReset called %d times, want 1", res.count())
	}
	if m.LastError() != MemoryError {
		t.Errorf("LastError = %v, want MEMORY_ERROR", m.LastError())
	}
	if m.Running() {
		t.Error("driver should have exited")
	}

	// A new Start after the fatal exit is allowed
	if err := m.Start(RoleStation); err != nil {
		t.Fatalf("restart after fatal exit: %v", err)
	}
	m.Stop()
}

func TestManager_InitFailureWaitsForReady(t *testing.T) {
	r := newFakeRadio()
	r.setInit(radio.OutcomeTimeout)
	r.scans = [][]radio.AccessPoint{{target}}
	m, _, _, _ := newTestManager(r)

	if err := m.Start(RoleStation); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	waitFor(t, "init retry", func() bool { return r.count("Init") >= 2 })
	if r.count("Reset") != 0 {
		t.Fatal("driver issued commands before the radio was ready")
	}
	if m.Status().Phase != "wait-ready" {
		t.Errorf("phase = %s, want wait-ready", m.Status().Phase)
	}

	r.setInit(radio.OutcomeOK)
	waitFor(t, "station ready", func() bool { return m.Status().StationReady })
}

func TestManager_ReadyReportFromModule(t *testing.T) {
	r := newFakeRadio()
	r.setInit(radio.OutcomeTimeout)
	r.scans = [][]radio.AccessPoint{{target}}
	m, _, _, _ := newTestManager(r)

	if err := m.Start(RoleStation); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	r.emit(radio.ResetDone{})
	waitFor(t, "station ready", func() bool { return m.Status().StationReady })
}

func TestManager_RequestRestartCollapses(t *testing.T) {
	m, _, _, not := newTestManager(newFakeRadio())
	before := not.count()

	m.RequestRestart()
	m.RequestRestart()

	if !m.Status().RestartRequested {
		t.Error("restart should be pending")
	}
	if not.count() != before+1 {
		t.Errorf("notified %d times, want 1", not.count()-before)
	}
}

func TestManager_RestartReturnsToReset(t *testing.T) {
	r := newFakeRadio()
	r.scans = [][]radio.AccessPoint{{target}}
	m, _, _, _ := newTestManager(r)

	if err := m.Start(RoleStation); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()
	waitFor(t, "station ready", func() bool { return m.Status().StationReady })
	resets := r.count("Reset")

	m.RequestRestart()
	waitFor(t, "second reset", func() bool { return r.count("Reset") > resets })
	waitFor(t, "restart consumed", func() bool { return !m.Status().RestartRequested })
	waitFor(t, "station ready again", func() bool { return m.Status().StationReady })
}

// ============================================================
// Events
// ============================================================

func TestManager_EventsUpdateFlags(t *testing.T) {
	r := newFakeRadio()
	m, _, _, _ := newTestManager(r)
	st := m.State()

	r.emit(radio.InitFinished{})
	if !st.RadioReady() {
		t.Error("InitFinished should set radioReady")
	}
	r.emit(radio.ResetStarted{})
	if st.RadioReady() {
		t.Error("ResetStarted should clear radioReady")
	}
	r.emit(radio.Restored{})
	if !st.RadioReady() {
		t.Error("Restored should set radioReady")
	}

	st.stationReady.Store(true)
	r.emit(radio.WifiDisconnected{})
	if st.StationReady() {
		t.Error("WifiDisconnected should clear stationReady")
	}

	st.peerConnected.Store(true)
	r.emit(radio.APStationLeft{MAC: "aa:bb:cc:dd:ee:ff"})
	if st.PeerConnected() {
		t.Error("APStationLeft should clear peerConnected")
	}

	r.emit(radio.StationJoinResult{Outcome: radio.OutcomeWrongPassword})
	if m.LastError() != ConnectFailed {
		t.Errorf("LastError = %v, want CONNECT_FAILED", m.LastError())
	}

	r.emit(radio.APIPAssigned{MAC: "aa:bb:cc:dd:ee:ff", IP: net.IPv4(192, 168, 4, 2)})
	r.emit(radio.ServerStatus{Outcome: radio.OutcomeOK, Port: 8888, Enabled: true})
	if !st.APReady() {
		t.Error("enabled ServerStatus should set apReady")
	}
	r.emit(radio.ServerStatus{Outcome: radio.OutcomeOK, Port: 8888, Enabled: false})
	if st.APReady() {
		t.Error("disabled ServerStatus should clear apReady")
	}

	r.emit(radio.CommandTimeout{})
	if m.LastError() != Timeout {
		t.Errorf("LastError = %v, want TIMEOUT", m.LastError())
	}
	r.emit(radio.UnsupportedVersion{})
	if m.LastError() != NoDevice {
		t.Errorf("LastError = %v, want NO_DEVICE", m.LastError())
	}
}
