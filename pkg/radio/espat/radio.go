// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espat

import (
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/esslink/pkg/radio"
)

var _ radio.Radio = (*Device)(nil)

// Init checks the module answers, turns echo off and reports readiness
func (d *Device) Init() radio.Outcome {
	if _, o := d.Cmd("AT", d.opts.CommandTimeout); !o.OK() {
		return o
	}
	if _, o := d.Cmd("ATE0", d.opts.CommandTimeout); !o.OK() {
		return o
	}
	d.checkVersion()
	d.emit(radio.InitFinished{})
	return radio.OutcomeOK
}

// Version returns the AT firmware version line
func (d *Device) Version() (string, radio.Outcome) {
	lines, o := d.Cmd("AT+GMR", d.opts.CommandTimeout)
	if !o.OK() {
		return "", o
	}
	for _, l := range lines {
		if strings.HasPrefix(l, versionPrefix) {
			return strings.TrimPrefix(l, versionPrefix), radio.OutcomeOK
		}
	}
	return "", radio.OutcomeParse
}

func (d *Device) checkVersion() {
	v, o := d.Version()
	if !o.OK() {
		d.log.Debug("firmware version unavailable", zap.Stringer("outcome", o))
		return
	}
	d.log.Info("firmware", zap.String("version", v))
	if major, ok := parseVersion(versionPrefix + v); ok && major < minSupportedVersion {
		d.emit(radio.UnsupportedVersion{})
	}
}

// Reset reboots the module and waits for it to come back
func (d *Device) Reset() radio.Outcome {
	d.resetting.Store(true)
	defer d.resetting.Store(false)

	select {
	case <-d.ready:
	default:
	}

	d.emit(radio.ResetStarted{})
	d.dropLinks()

	if _, o := d.Cmd("AT+RST", d.opts.CommandTimeout); !o.OK() {
		return o
	}

	timer := time.NewTimer(d.opts.ResetTimeout)
	defer timer.Stop()
	select {
	case <-d.ready:
	case <-timer.C:
		d.log.Warn("module did not report ready after reset")
		d.emit(radio.CommandTimeout{})
		return radio.OutcomeTimeout
	case <-d.done:
		return radio.OutcomeNoDevice
	}

	if _, o := d.Cmd("ATE0", d.opts.CommandTimeout); !o.OK() {
		return o
	}
	d.emit(radio.ResetDone{})
	return radio.OutcomeOK
}

// dropLinks forgets every link and the server after a module reset
func (d *Device) dropLinks() {
	d.mu.Lock()
	for id, l := range d.links {
		l.close()
		delete(d.links, id)
	}
	d.server = nil
	d.mu.Unlock()
	for {
		select {
		case <-d.accepts:
		default:
			return
		}
	}
}

func (d *Device) SetMode(mode radio.Mode) radio.Outcome {
	_, o := d.Cmd(fmt.Sprintf("AT+CWMODE=%d", int(mode)), d.opts.CommandTimeout)
	return o
}

// ScanAccessPoints lists visible networks, at most capacity entries
func (d *Device) ScanAccessPoints(capacity int) (radio.Outcome, []radio.AccessPoint) {
	lines, o := d.Cmd("AT+CWLAP", d.opts.ScanTimeout)
	if !o.OK() {
		return o, nil
	}
	var aps []radio.AccessPoint
	for _, l := range lines {
		if capacity > 0 && len(aps) >= capacity {
			break
		}
		if ap, ok := parseAccessPoint(l); ok {
			aps = append(aps, ap)
		}
	}
	return radio.OutcomeOK, aps
}

func (d *Device) Join(ssid, secret string) radio.Outcome {
	_, o := d.Cmd("AT+CWJAP="+quote(ssid)+","+quote(secret), d.opts.JoinTimeout)
	d.emit(radio.StationJoinResult{Outcome: o})
	return o
}

// IsJoined queries the current association
func (d *Device) IsJoined() bool {
	lines, o := d.Cmd("AT+CWJAP?", d.opts.CommandTimeout)
	if !o.OK() {
		return false
	}
	for _, l := range lines {
		if strings.HasPrefix(l, joinErrPrefix+`"`) {
			return true
		}
	}
	return false
}

func (d *Device) CopyAssignedIP() (radio.Outcome, net.IP) {
	lines, o := d.Cmd("AT+CIPSTA?", d.opts.CommandTimeout)
	if !o.OK() {
		return o, nil
	}
	for _, l := range lines {
		if v, ok := strings.CutPrefix(l, "+CIPSTA:ip:"); ok {
			ip := parseIP(v)
			if ip == nil || ip.IsUnspecified() {
				return radio.OutcomeNoIP, nil
			}
			return radio.OutcomeOK, ip
		}
	}
	return radio.OutcomeNoIP, nil
}

func (d *Device) Ping(target string) radio.Outcome {
	_, o := d.Cmd("AT+PING="+quote(target), d.opts.PingTimeout)
	return o
}

func (d *Device) ConfigureAccessPoint(cfg radio.APConfig) radio.Outcome {
	cmd := "AT+CWSAP_CUR="
	if cfg.Persist {
		cmd = "AT+CWSAP_DEF="
	}
	hidden := 0
	if cfg.Hidden {
		hidden = 1
	}
	maxConn := cfg.MaxStations
	if maxConn <= 0 {
		maxConn = 1
	}
	cmd += fmt.Sprintf("%s,%s,%d,%d,%d,%d",
		quote(cfg.SSID), quote(cfg.Secret), cfg.Channel, int(cfg.Encryption), maxConn, hidden)
	_, o := d.Cmd(cmd, d.opts.CommandTimeout)
	return o
}

func (d *Device) ListStations(capacity int) (radio.Outcome, []radio.StationInfo) {
	lines, o := d.Cmd("AT+CWLIF", d.opts.CommandTimeout)
	if !o.OK() {
		return o, nil
	}
	var out []radio.StationInfo
	for _, l := range lines {
		if capacity > 0 && len(out) >= capacity {
			break
		}
		if s, ok := parseStation(l); ok {
			out = append(out, s)
		}
	}
	d.emit(radio.StationListed{})
	return radio.OutcomeOK, out
}

func (d *Device) SetIP(ip, gateway, netmask net.IP) radio.Outcome {
	if ip.To4() == nil || gateway.To4() == nil || netmask.To4() == nil {
		return radio.OutcomeInvalidParam
	}
	cmd := fmt.Sprintf("AT+CIPAP_CUR=%s,%s,%s",
		quote(ip.String()), quote(gateway.String()), quote(netmask.String()))
	_, o := d.Cmd(cmd, d.opts.CommandTimeout)
	return o
}

// CreateSocket returns the server handle. The module runs one TCP server,
// so a second handle or a UDP socket is unavailable.
func (d *Device) CreateSocket(kind radio.SocketKind) *radio.Socket {
	if kind != radio.SocketTCP {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.server != nil {
		return nil
	}
	d.server = &radio.Socket{ID: -1, Kind: kind, Server: true}
	return d.server
}

func (d *Device) Bind(s *radio.Socket, port int) radio.Outcome {
	if s == nil || !s.Server || port <= 0 || port > 65535 {
		return radio.OutcomeInvalidParam
	}
	s.Port = port
	return radio.OutcomeOK
}

func (d *Device) Listen(s *radio.Socket) radio.Outcome {
	if s == nil || !s.Server || s.Port == 0 {
		return radio.OutcomeInvalidParam
	}
	if _, o := d.Cmd("AT+CIPMUX=1", d.opts.CommandTimeout); !o.OK() {
		return o
	}
	_, o := d.Cmd(fmt.Sprintf("AT+CIPSERVER=1,%d", s.Port), d.opts.CommandTimeout)
	d.emit(radio.ServerStatus{Outcome: o, Port: s.Port, Enabled: o.OK()})
	return o
}

// Accept waits for the next inbound link. Links the peer already closed
// without sending anything are skipped.
func (d *Device) Accept(s *radio.Socket) (radio.Outcome, *radio.Socket) {
	if s == nil || !s.Server {
		return radio.OutcomeInvalidParam, nil
	}

	timer := time.NewTimer(d.opts.AcceptTimeout)
	defer timer.Stop()
	for {
		select {
		case l := <-d.accepts:
			d.mu.Lock()
			current := d.links[l.id] == l
			d.mu.Unlock()
			if !current || l.gone() {
				d.log.Debug("skipping stale link", zap.Int("link", l.id))
				continue
			}
			return radio.OutcomeOK, &radio.Socket{ID: l.id, Gen: l.gen, Kind: radio.SocketTCP, Port: s.Port}
		case <-timer.C:
			return radio.OutcomeTimeout, nil
		case <-d.done:
			return radio.OutcomeNoDevice, nil
		}
	}
}

// lookup returns the link behind s. A link whose ID was reused by a newer
// peer reports stale.
func (d *Device) lookup(s *radio.Socket) (l *link, ok, stale bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok = d.links[s.ID]
	if ok && l.gen != s.Gen {
		return nil, false, true
	}
	return l, ok, false
}

func (d *Device) SetReceiveTimeout(s *radio.Socket, timeout time.Duration) {
	if s != nil {
		s.Timeout = timeout
	}
}

// Receive returns the next fragment from a link. Data queued before the
// peer closed is still delivered.
func (d *Device) Receive(s *radio.Socket) (radio.Outcome, *radio.Buffer) {
	if s == nil || s.Server {
		return radio.OutcomeInvalidParam, nil
	}
	l, ok, stale := d.lookup(s)
	if stale {
		return radio.OutcomeClosed, nil
	}
	if !ok {
		return radio.OutcomeNotConnected, nil
	}

	select {
	case p := <-l.data:
		return radio.OutcomeOK, d.pool.New(p)
	default:
	}

	var timeout <-chan time.Time
	if s.Timeout > 0 {
		timer := time.NewTimer(s.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case p := <-l.data:
		return radio.OutcomeOK, d.pool.New(p)
	case <-l.closed:
		select {
		case p := <-l.data:
			return radio.OutcomeOK, d.pool.New(p)
		default:
			return radio.OutcomeClosed, nil
		}
	case <-timeout:
		return radio.OutcomeTimeout, nil
	case <-d.done:
		return radio.OutcomeNoDevice, nil
	}
}

// Close shuts a link or stops the server
func (d *Device) Close(s *radio.Socket) radio.Outcome {
	if s == nil {
		return radio.OutcomeInvalidParam
	}
	if s.Server {
		_, o := d.Cmd("AT+CIPSERVER=0,1", d.opts.CommandTimeout)
		d.emit(radio.ServerStatus{Outcome: o, Port: s.Port, Enabled: false})
		return o
	}

	l, ok, _ := d.lookup(s)
	if !ok {
		return radio.OutcomeClosed
	}
	select {
	case <-l.closed:
		return radio.OutcomeOK
	default:
	}
	_, o := d.Cmd(fmt.Sprintf("AT+CIPCLOSE=%d", s.ID), d.opts.CommandTimeout)
	l.close()
	return o
}

// Delete forgets a handle. Receive on a deleted link reports NotConnected.
func (d *Device) Delete(s *radio.Socket) {
	if s == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.Server {
		if d.server == s {
			d.server = nil
		}
		return
	}
	if l, ok := d.links[s.ID]; ok && l.gen == s.Gen {
		if n := l.dropped.Load(); n > 0 {
			d.log.Warn("link dropped fragments", zap.Int("link", s.ID), zap.Int64("dropped", n))
		}
		l.close()
		delete(d.links, s.ID)
	}
}

func parseIP(s string) net.IP {
	return net.ParseIP(strings.Trim(strings.TrimSpace(s), `"`))
}
