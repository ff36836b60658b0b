// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/esslink/pkg/radio"
)

// ============================================================
// Scripted radio
// ============================================================

type recvStep struct {
	outcome radio.Outcome
	data    []byte
}

type fakeRadio struct {
	mu      sync.Mutex
	pool    *radio.Pool
	handler func(radio.Event)
	calls   map[string]int

	initOutcome  radio.Outcome
	resetOutcome radio.Outcome
	modeOutcome  radio.Outcome
	scans        [][]radio.AccessPoint
	joins        []radio.Outcome
	joined       bool
	ip           net.IP
	pings        []radio.Outcome
	pingDefault  radio.Outcome
	bindOutcome  radio.Outcome
	accepts      []radio.Outcome
	recv         []recvStep
	noSocket     bool

	nextID  int
	closed  []*radio.Socket
	deleted []*radio.Socket
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{
		pool:   radio.NewPool(),
		calls:  make(map[string]int),
		joined: true,
		ip:     net.IPv4(192, 168, 1, 50),
	}
}

func (f *fakeRadio) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRadio) called(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func popOutcome(q *[]radio.Outcome, def radio.Outcome) radio.Outcome {
	if len(*q) == 0 {
		return def
	}
	o := (*q)[0]
	*q = (*q)[1:]
	return o
}

func (f *fakeRadio) emit(ev radio.Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (f *fakeRadio) Init() radio.Outcome {
	f.called("Init")
	f.mu.Lock()
	o := f.initOutcome
	f.mu.Unlock()
	if o.OK() {
		f.emit(radio.InitFinished{})
	}
	return o
}

func (f *fakeRadio) setInit(o radio.Outcome) {
	f.mu.Lock()
	f.initOutcome = o
	f.mu.Unlock()
}

func (f *fakeRadio) Reset() radio.Outcome {
	f.called("Reset")
	return f.resetOutcome
}

func (f *fakeRadio) SetMode(radio.Mode) radio.Outcome {
	f.called("SetMode")
	return f.modeOutcome
}

func (f *fakeRadio) ScanAccessPoints(int) (radio.Outcome, []radio.AccessPoint) {
	f.called("Scan")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.scans) == 0 {
		return radio.OutcomeOK, nil
	}
	aps := f.scans[0]
	if len(f.scans) > 1 {
		f.scans = f.scans[1:]
	}
	return radio.OutcomeOK, aps
}

func (f *fakeRadio) Join(string, string) radio.Outcome {
	f.called("Join")
	f.mu.Lock()
	defer f.mu.Unlock()
	return popOutcome(&f.joins, radio.OutcomeOK)
}

func (f *fakeRadio) IsJoined() bool {
	f.called("IsJoined")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined
}

func (f *fakeRadio) CopyAssignedIP() (radio.Outcome, net.IP) {
	f.called("CopyAssignedIP")
	return radio.OutcomeOK, f.ip
}

func (f *fakeRadio) Ping(string) radio.Outcome {
	f.called("Ping")
	f.mu.Lock()
	defer f.mu.Unlock()
	return popOutcome(&f.pings, f.pingDefault)
}

func (f *fakeRadio) ConfigureAccessPoint(radio.APConfig) radio.Outcome {
	f.called("ConfigureAccessPoint")
	return radio.OutcomeOK
}

func (f *fakeRadio) ListStations(int) (radio.Outcome, []radio.StationInfo) {
	f.called("ListStations")
	return radio.OutcomeOK, nil
}

func (f *fakeRadio) SetIP(net.IP, net.IP, net.IP) radio.Outcome {
	f.called("SetIP")
	return radio.OutcomeOK
}

func (f *fakeRadio) CreateSocket(kind radio.SocketKind) *radio.Socket {
	f.called("CreateSocket")
	if f.noSocket {
		return nil
	}
	return &radio.Socket{ID: -1, Kind: kind, Server: true}
}

func (f *fakeRadio) Bind(s *radio.Socket, port int) radio.Outcome {
	f.called("Bind")
	s.Port = port
	return f.bindOutcome
}

func (f *fakeRadio) Listen(*radio.Socket) radio.Outcome {
	f.called("Listen")
	return radio.OutcomeOK
}

func (f *fakeRadio) Accept(*radio.Socket) (radio.Outcome, *radio.Socket) {
	f.called("Accept")
	f.mu.Lock()
	defer f.mu.Unlock()
	o := popOutcome(&f.accepts, radio.OutcomeTimeout)
	if !o.OK() {
		return o, nil
	}
	f.nextID++
	return o, &radio.Socket{ID: f.nextID}
}

func (f *fakeRadio) SetReceiveTimeout(s *radio.Socket, d time.Duration) {
	f.called("SetReceiveTimeout")
	s.Timeout = d
}

func (f *fakeRadio) Receive(*radio.Socket) (radio.Outcome, *radio.Buffer) {
	f.called("Receive")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recv) == 0 {
		return radio.OutcomeTimeout, nil
	}
	step := f.recv[0]
	f.recv = f.recv[1:]
	if step.data == nil {
		return step.outcome, nil
	}
	return step.outcome, f.pool.New(step.data)
}

func (f *fakeRadio) Close(s *radio.Socket) radio.Outcome {
	f.mu.Lock()
	f.closed = append(f.closed, s)
	f.mu.Unlock()
	return radio.OutcomeOK
}

func (f *fakeRadio) Delete(s *radio.Socket) {
	f.mu.Lock()
	f.deleted = append(f.deleted, s)
	f.mu.Unlock()
}

func (f *fakeRadio) SetEventHandler(fn func(radio.Event)) {
	f.mu.Lock()
	f.handler = fn
	f.mu.Unlock()
}

// ============================================================
// Recorders
// ============================================================

type sleepRecorder struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.durations = append(s.durations, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.durations {
		if v == d {
			n++
		}
	}
	return n
}

type parserRecorder struct {
	mu      sync.Mutex
	frames  [][]byte
	resets  int
	onParse func()
}

func (p *parserRecorder) Parse(_ Source, data []byte) {
	if p.onParse != nil {
		p.onParse()
	}
	p.mu.Lock()
	p.frames = append(p.frames, append([]byte(nil), data...))
	p.mu.Unlock()
}

func (p *parserRecorder) Reset(Source) {
	p.mu.Lock()
	p.resets++
	p.mu.Unlock()
}

func (p *parserRecorder) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

type resetRecorder struct {
	mu      sync.Mutex
	reasons []error
}

func (r *resetRecorder) SystemReset(reason error) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
}

func (r *resetRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

// ============================================================
// Helpers
// ============================================================

const (
	testShort = time.Second
	testPoll  = 100 * time.Millisecond
	testScan  = 60 * time.Second
	testJoin  = 30 * time.Second
	testNet   = 45 * time.Second
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TargetSSID = "site-net"
	cfg.TargetSecret = "hunter2hunter2"
	cfg.AP.Secret = "controller-secret"
	cfg.ShortDelay = testShort
	cfg.PollInterval = testPoll
	cfg.ReceiveTimeout = 0
	cfg.Scan = RetryPolicy{Threshold: 3, LongDelay: testScan}
	cfg.Join = RetryPolicy{Threshold: 2, LongDelay: testJoin}
	cfg.NetCheck = RetryPolicy{Threshold: 2, LongDelay: testNet}
	return cfg
}

type testRig struct {
	radio    *fakeRadio
	sleeper  *sleepRecorder
	parser   *parserRecorder
	resetter *resetRecorder
	st       *ConnectionState
	d        *driver
}

func newTestRig(t *testing.T, role Role) *testRig {
	t.Helper()
	r := &testRig{
		radio:    newFakeRadio(),
		sleeper:  &sleepRecorder{},
		parser:   &parserRecorder{},
		resetter: &resetRecorder{},
		st:       &ConnectionState{},
	}
	cfg := testConfig()
	r.st.reset(role, cfg)
	r.d = &driver{
		role:     role,
		radio:    r.radio,
		cfg:      cfg,
		st:       r.st,
		log:      zap.NewNop(),
		sleep:    r.sleeper.sleep,
		parser:   r.parser,
		resetter: r.resetter,
		notify:   func() {},
	}
	return r
}

// stepFrom runs one step starting at p
func (r *testRig) stepFrom(t *testing.T, p phase) phase {
	t.Helper()
	r.d.phase = p
	next, err := r.d.step(context.Background())
	if err != nil {
		t.Fatalf("step(%v): %v", p, err)
	}
	return next
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
