// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import (
	"context"

	"go.uber.org/zap"

	"github.com/Thermoquad/esslink/pkg/radio"
)

func (d *driver) configureAddress(ctx context.Context) (phase, error) {
	o := d.radio.SetIP(d.cfg.APAddress, d.cfg.APGateway, d.cfg.APNetmask)
	code, err := d.check("set ip", o)
	if err != nil {
		return phaseStopped, err
	}
	if code != Ok {
		return d.abort(ctx), nil
	}
	return phaseConfigureAP, nil
}

func (d *driver) configureAP(ctx context.Context) (phase, error) {
	code, err := d.check("configure ap", d.radio.ConfigureAccessPoint(d.cfg.AP))
	if err != nil {
		return phaseStopped, err
	}
	if code != Ok {
		return d.abort(ctx), nil
	}
	d.log.Info("access point configured",
		zap.String("ssid", d.cfg.AP.SSID),
		zap.Int("channel", d.cfg.AP.Channel))
	return phaseListStations, nil
}

func (d *driver) listStations(ctx context.Context) (phase, error) {
	o, stations := d.radio.ListStations(d.cfg.StationCapacity)
	code, err := d.check("list stations", o)
	if err != nil {
		return phaseStopped, err
	}
	if code != Ok {
		return d.abort(ctx), nil
	}
	for _, s := range stations {
		d.log.Info("station associated", zap.String("mac", s.MAC), zap.Stringer("ip", s.IP))
	}
	return phaseCreateServer, nil
}

func (d *driver) createServer() (phase, error) {
	s := d.radio.CreateSocket(radio.SocketTCP)
	if s == nil {
		return phaseStopped, d.fatal("create socket", MemoryError)
	}
	d.st.server = s
	return phaseBind, nil
}

func (d *driver) bind(ctx context.Context) (phase, error) {
	code, err := d.check("bind", d.radio.Bind(d.st.server, d.cfg.ServerPort))
	if err != nil {
		return phaseStopped, err
	}
	if code != Ok {
		return d.abort(ctx), nil
	}
	return phaseListen, nil
}

func (d *driver) listen(ctx context.Context) (phase, error) {
	code, err := d.check("listen", d.radio.Listen(d.st.server))
	if err != nil {
		return phaseStopped, err
	}
	if code != Ok {
		return d.abort(ctx), nil
	}
	d.st.apReady.Store(true)
	d.log.Info("server listening", zap.Int("port", d.cfg.ServerPort))
	d.notify()
	return phaseAccept, nil
}

func (d *driver) accept(ctx context.Context) (phase, error) {
	o, client := d.radio.Accept(d.st.server)
	code := Classify(o)
	if code.Fatal() {
		return phaseStopped, d.fatal("accept", code)
	}

	if code == Ok && client != nil {
		if err := d.serve(ctx, client); err != nil {
			return phaseStopped, err
		}
	} else if code != Timeout {
		d.st.setError(code)
		d.log.Warn("accept failed", zap.Stringer("code", code))
	}

	if d.st.restartRequested.CompareAndSwap(true, false) {
		d.log.Info("restart requested")
		d.releaseServer()
		return phaseReset, nil
	}
	if code != Ok && code != Timeout {
		d.pause(ctx, d.cfg.ShortDelay)
	}
	return phaseAccept, nil
}

// serve owns one client connection until the peer goes away, a restart
// is requested or receiving fails
func (d *driver) serve(ctx context.Context, client *radio.Socket) error {
	if sp, ok := d.parser.(SessionParser); ok {
		sp.Reset(SourceWifi)
	}
	d.st.client = client
	d.st.peerConnected.Store(true)
	d.log.Info("client connected", zap.Stringer("link", client))
	d.notify()

	d.radio.SetReceiveTimeout(client, d.cfg.ReceiveTimeout)
	err := d.receive(ctx, client)

	d.releaseClient()
	d.log.Info("client disconnected", zap.Stringer("link", client))
	d.notify()
	return err
}

func (d *driver) receive(ctx context.Context, client *radio.Socket) error {
	for {
		o, frag := d.radio.Receive(client)
		code := Classify(o)
		switch {
		case code == Ok:
			if frag != nil {
				d.st.pending.Append(frag)
				d.dispatch()
			}
		case code == Timeout:
			// A quiet client is normal; only leave when asked to
			if !d.st.peerConnected.Load() || d.st.restartRequested.Load() || ctx.Err() != nil {
				return nil
			}
		case code.Fatal():
			return d.fatal("receive", code)
		default:
			d.st.setError(code)
			if code == Closed {
				d.log.Info("peer closed the connection")
			} else {
				d.log.Warn("receive failed", zap.Stringer("code", code))
			}
			return nil
		}
	}
}

// dispatch hands the assembled chain to the parser and frees it
func (d *driver) dispatch() {
	buf := d.st.pending.TakeAndClear()
	if buf == nil {
		return
	}
	d.parser.Parse(SourceWifi, buf.Bytes())
	if err := buf.Free(); err != nil {
		d.log.Error("receive buffer", zap.Error(err))
	}
}
