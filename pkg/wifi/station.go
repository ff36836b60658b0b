// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wifi

import (
	"context"

	"go.uber.org/zap"
)

func (d *driver) scan(ctx context.Context) (phase, error) {
	o, aps := d.radio.ScanAccessPoints(d.cfg.ScanCapacity)
	code, err := d.check("scan", o)
	if err != nil {
		return phaseStopped, err
	}

	if code == Ok {
		for _, ap := range aps {
			if ap.SSID == d.cfg.TargetSSID {
				d.log.Info("target network visible",
					zap.String("ssid", ap.SSID),
					zap.Int("rssi", ap.RSSI),
					zap.Int("channel", ap.Channel))
				d.st.ScanErrors.Succeed()
				return phaseJoin, nil
			}
		}
		d.log.Debug("target network not in scan", zap.Int("found", len(aps)))
	}

	if d.st.ScanErrors.Fail() {
		d.log.Warn("target network missing, backing off",
			zap.String("ssid", d.cfg.TargetSSID),
			zap.Duration("delay", d.cfg.Scan.LongDelay))
		d.notify()
		d.pause(ctx, d.cfg.Scan.LongDelay)
		return phaseScan, nil
	}
	d.pause(ctx, d.cfg.ShortDelay)
	return phaseScan, nil
}

func (d *driver) join(ctx context.Context) (phase, error) {
	code, err := d.check("join", d.radio.Join(d.cfg.TargetSSID, d.cfg.TargetSecret))
	if err != nil {
		return phaseStopped, err
	}
	if code == Ok {
		d.st.JoinErrors.Succeed()
		return phaseAcquireIP, nil
	}

	escalate := d.st.JoinErrors.Fail()
	d.pause(ctx, d.cfg.ShortDelay)
	if escalate {
		d.log.Warn("join keeps failing, backing off", zap.Duration("delay", d.cfg.Join.LongDelay))
		d.pause(ctx, d.cfg.Join.LongDelay)
	}
	return phaseScan, nil
}

func (d *driver) acquireIP() (phase, error) {
	o, ip := d.radio.CopyAssignedIP()
	code, err := d.check("acquire ip", o)
	if err != nil {
		return phaseStopped, err
	}
	if code != Ok || ip == nil {
		return phaseScan, nil
	}
	d.st.ip.Store(ip.String())
	d.log.Info("station address assigned", zap.Stringer("ip", ip))
	return phaseSteady, nil
}

func (d *driver) steady(ctx context.Context) (phase, error) {
	if !d.radio.IsJoined() {
		d.log.Warn("lost association with access point")
		d.st.stationReady.Store(false)
		d.st.setError(NotConnected)
		return phaseReset, nil
	}
	if d.st.restartRequested.CompareAndSwap(true, false) {
		d.log.Info("restart requested")
		d.st.stationReady.Store(false)
		return phaseReset, nil
	}

	if !d.st.stationReady.Load() {
		code, err := d.check("ping", d.radio.Ping(d.cfg.PingTarget))
		if err != nil {
			return phaseStopped, err
		}
		if code == Ok {
			d.st.NetCheckErrors.Succeed()
			d.st.stationReady.Store(true)
			d.log.Info("network reachable", zap.String("target", d.cfg.PingTarget))
			d.notify()
		} else {
			escalate := d.st.NetCheckErrors.Fail()
			d.pause(ctx, d.cfg.ShortDelay)
			if escalate {
				d.log.Warn("network check keeps failing, backing off",
					zap.Duration("delay", d.cfg.NetCheck.LongDelay))
				d.pause(ctx, d.cfg.NetCheck.LongDelay)
			}
			return phaseSteady, nil
		}
	}

	d.pause(ctx, d.cfg.PollInterval)
	return phaseSteady, nil
}
