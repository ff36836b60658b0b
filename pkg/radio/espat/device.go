// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package espat drives an ESP-AT Wi-Fi co-processor over a serial link and
// exposes it as a radio.Radio.
//
// A reader goroutine owns the input stream. It splits it into CRLF lines,
// pulls binary +IPD deliveries out of the stream, completes the command in
// flight and turns unsolicited result codes into radio events.
package espat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/esslink/pkg/radio"
)

// Default timeouts
const (
	DefaultCommandTimeout = 2 * time.Second
	DefaultResetTimeout   = 5 * time.Second
	DefaultScanTimeout    = 10 * time.Second
	DefaultJoinTimeout    = 20 * time.Second
	DefaultPingTimeout    = 5 * time.Second
	DefaultAcceptTimeout  = 5 * time.Second
)

const (
	maxLinks      = 5 // link ids the module hands out
	linkQueueSize = 64
	maxIPDLength  = 8192
)

// Options tunes a Device. Zero values get the defaults.
type Options struct {
	Logger         *zap.Logger
	Pool           *radio.Pool
	CommandTimeout time.Duration
	ResetTimeout   time.Duration
	ScanTimeout    time.Duration
	JoinTimeout    time.Duration
	PingTimeout    time.Duration
	AcceptTimeout  time.Duration
}

type command struct {
	lines []string
	done  chan radio.Outcome
}

type link struct {
	id        int
	gen       uint64
	data      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

func newLink(id int, gen uint64) *link {
	return &link{id: id, gen: gen, data: make(chan []byte, linkQueueSize), closed: make(chan struct{})}
}

// gone reports whether the peer closed the link and nothing is left to read
func (l *link) gone() bool {
	select {
	case <-l.closed:
		return len(l.data) == 0
	default:
		return false
	}
}

func (l *link) close() {
	l.closeOnce.Do(func() { close(l.closed) })
}

// Device is an ESP-AT module on a byte stream
type Device struct {
	rw   io.ReadWriteCloser
	opts Options
	log  *zap.Logger
	pool *radio.Pool

	cmdMu sync.Mutex // one command in flight

	mu      sync.Mutex
	pending *command
	handler func(radio.Event)
	tap     func(Line)
	links   map[int]*link
	linkGen uint64
	server  *radio.Socket

	accepts   chan *link
	ready     chan struct{}
	resetting atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

// New starts the reader on rw. The device owns rw from here on.
func New(rw io.ReadWriteCloser, opts Options) *Device {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Pool == nil {
		opts.Pool = radio.NewPool()
	}
	setDefault(&opts.CommandTimeout, DefaultCommandTimeout)
	setDefault(&opts.ResetTimeout, DefaultResetTimeout)
	setDefault(&opts.ScanTimeout, DefaultScanTimeout)
	setDefault(&opts.JoinTimeout, DefaultJoinTimeout)
	setDefault(&opts.PingTimeout, DefaultPingTimeout)
	setDefault(&opts.AcceptTimeout, DefaultAcceptTimeout)

	d := &Device{
		rw:      rw,
		opts:    opts,
		log:     opts.Logger.Named("espat"),
		pool:    opts.Pool,
		links:   make(map[int]*link),
		accepts: make(chan *link, maxLinks-1),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go d.readLoop()
	return d
}

func setDefault(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}

// Pool returns the allocator used for received fragments
func (d *Device) Pool() *radio.Pool { return d.pool }

// SetEventHandler registers the event callback
func (d *Device) SetEventHandler(fn func(radio.Event)) {
	d.mu.Lock()
	d.handler = fn
	d.mu.Unlock()
}

// SetLineTap registers a callback that sees every classified line,
// including the commands we write
func (d *Device) SetLineTap(fn func(Line)) {
	d.mu.Lock()
	d.tap = fn
	d.mu.Unlock()
}

// Shutdown stops the reader and closes the underlying stream
func (d *Device) Shutdown() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.rw.Close()
		<-d.done
	})
	return err
}

// Done is closed when the reader has stopped
func (d *Device) Done() <-chan struct{} { return d.done }

func (d *Device) emit(ev radio.Event) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (d *Device) report(kind LineKind, text string) {
	d.mu.Lock()
	tap := d.tap
	d.mu.Unlock()
	if tap != nil {
		tap(Line{Kind: kind, Text: text, At: time.Now()})
	}
}

// Cmd writes one AT command and waits for its final line. It returns the
// data lines seen in between.
func (d *Device) Cmd(cmd string, timeout time.Duration) ([]string, radio.Outcome) {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	select {
	case <-d.done:
		return nil, radio.OutcomeNoDevice
	default:
	}

	c := &command{done: make(chan radio.Outcome, 1)}
	d.mu.Lock()
	d.pending = c
	d.mu.Unlock()

	d.report(LineCommand, cmd)
	d.log.Debug("command", zap.String("cmd", redact(cmd)))
	if _, err := io.WriteString(d.rw, cmd+CRLF); err != nil {
		d.clearPending(c)
		d.log.Warn("write failed", zap.Error(err))
		return nil, radio.OutcomeNoDevice
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-c.done:
		return c.lines, o
	case <-timer.C:
		lines := d.clearPending(c)
		d.log.Warn("command timeout", zap.String("cmd", redact(cmd)), zap.Duration("timeout", timeout))
		d.emit(radio.CommandTimeout{})
		return lines, radio.OutcomeTimeout
	case <-d.done:
		d.clearPending(c)
		return nil, radio.OutcomeNoDevice
	}
}

func (d *Device) clearPending(c *command) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == c {
		d.pending = nil
	}
	return append([]string(nil), c.lines...)
}

// redact hides join and AP secrets from logs
func redact(cmd string) string {
	for _, p := range []string{"AT+CWJAP=", "AT+CWSAP_CUR=", "AT+CWSAP_DEF="} {
		if strings.HasPrefix(cmd, p) {
			return p + "..."
		}
	}
	return cmd
}

func (d *Device) readLoop() {
	defer close(d.done)
	defer d.closeAllLinks()

	br := bufio.NewReader(d.rw)
	var line []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				d.log.Warn("read failed", zap.Error(err))
			}
			return
		}

		if b == '\n' {
			text := strings.TrimRight(string(line), "\r")
			line = line[:0]
			if text != "" {
				d.handleLine(text)
			}
			continue
		}
		line = append(line, b)

		if b == ':' && strings.HasPrefix(string(line), ipdPrefix) {
			header := string(line)
			line = line[:0]
			id, n, err := parseIPD(header)
			if err != nil || n > maxIPDLength {
				d.log.Warn("bad +IPD header", zap.String("header", header), zap.Error(err))
				continue
			}
			payload := make([]byte, n)
			if _, err := io.ReadFull(br, payload); err != nil {
				d.log.Warn("short +IPD payload", zap.Int("link", id), zap.Error(err))
				return
			}
			d.report(LineIPD, header)
			d.deliver(id, payload)
		}
	}
}

func (d *Device) handleLine(text string) {
	kind := Classify(text)
	d.report(kind, text)

	switch kind {
	case LineFinal:
		d.mu.Lock()
		c := d.pending
		d.pending = nil
		d.mu.Unlock()
		if c == nil {
			d.log.Debug("unexpected final line", zap.String("line", text))
			return
		}
		c.done <- finalOutcome(text, c.lines)
	case LineURC:
		d.handleURC(text)
	default:
		d.mu.Lock()
		if d.pending != nil {
			d.pending.lines = append(d.pending.lines, text)
		}
		d.mu.Unlock()
	}
}

func (d *Device) handleURC(text string) {
	switch text {
	case URCReady:
		if d.resetting.Load() {
			select {
			case d.ready <- struct{}{}:
			default:
			}
			return
		}
		// Spontaneous reboot: every link is gone
		d.log.Warn("module rebooted")
		d.closeAllLinks()
		d.emit(radio.InitFinished{})
		return
	case URCWifiConnected:
		d.emit(radio.WifiConnected{})
		return
	case URCWifiGotIP:
		d.emit(radio.GotIP{})
		return
	case URCWifiDisconnect:
		d.emit(radio.WifiDisconnected{})
		return
	}

	switch {
	case strings.HasPrefix(text, URCStaConnected):
		d.emit(radio.APStationJoined{MAC: unquote(strings.TrimPrefix(text, URCStaConnected))})
	case strings.HasPrefix(text, URCStaDisconnected):
		d.emit(radio.APStationLeft{MAC: unquote(strings.TrimPrefix(text, URCStaDisconnected))})
	case strings.HasPrefix(text, URCDistStaIP):
		f := splitFields(strings.TrimPrefix(text, URCDistStaIP))
		if len(f) >= 2 {
			d.emit(radio.APIPAssigned{MAC: f[0], IP: parseIP(f[1])})
		}
	default:
		if id, ok := linkURC(text); ok {
			if strings.HasSuffix(text, urcLinkConnect) {
				d.openLink(id)
			} else {
				d.closeLink(id)
			}
		}
	}
}

func (d *Device) openLink(id int) {
	d.mu.Lock()
	if old, ok := d.links[id]; ok {
		old.close()
	}
	d.linkGen++
	l := newLink(id, d.linkGen)
	d.links[id] = l
	d.mu.Unlock()

	select {
	case d.accepts <- l:
		d.log.Debug("link opened", zap.Int("link", id))
	default:
		// Peers reconnecting faster than we accept are turned away
		d.log.Warn("accept queue full, refusing link", zap.Int("link", id))
		d.mu.Lock()
		if d.links[id] == l {
			delete(d.links, id)
		}
		d.mu.Unlock()
		l.close()
		go d.refuseLink(id)
	}
}

// refuseLink closes a link the module opened but nobody will accept. It
// runs off the reader goroutine because Cmd needs the reader.
func (d *Device) refuseLink(id int) {
	d.mu.Lock()
	_, reopened := d.links[id]
	d.mu.Unlock()
	if reopened {
		return
	}
	if _, o := d.Cmd(fmt.Sprintf("AT+CIPCLOSE=%d", id), d.opts.CommandTimeout); !o.OK() {
		d.log.Debug("refuse link", zap.Int("link", id), zap.Stringer("outcome", o))
	}
}

func (d *Device) closeLink(id int) {
	d.mu.Lock()
	l, ok := d.links[id]
	d.mu.Unlock()
	if ok {
		l.close()
		d.log.Debug("link closed by peer", zap.Int("link", id))
	}
}

func (d *Device) closeAllLinks() {
	d.mu.Lock()
	for _, l := range d.links {
		l.close()
	}
	d.mu.Unlock()
}

func (d *Device) deliver(id int, payload []byte) {
	d.mu.Lock()
	l, ok := d.links[id]
	d.mu.Unlock()
	if !ok {
		d.log.Warn("data for unknown link", zap.Int("link", id), zap.Int("len", len(payload)))
		return
	}
	select {
	case l.data <- payload:
	default:
		l.dropped.Add(1)
		d.log.Warn("receive queue full, dropping", zap.Int("link", id), zap.Int("len", len(payload)))
	}
}

func unquote(s string) string {
	return strings.Trim(s, `"`)
}
