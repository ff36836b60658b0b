// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/esslink/pkg/config"
	"github.com/Thermoquad/esslink/pkg/essproto"
	"github.com/Thermoquad/esslink/pkg/events"
	"github.com/Thermoquad/esslink/pkg/wifi"
)

// Exit status asking the supervisor to restart the whole system
const exitSystemReset = 3

var (
	runRole           string
	runPromptPassword bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Wi-Fi link manager",
	Long: `Bring up the Wi-Fi module in the configured role and keep the link alive.

Station: scans for the configured network, joins it and checks reachability
of the ping target, backing off after repeated failures.

Access point: hosts the configured network and serves one TCP client on the
configured port. Received bytes are decoded as controller protocol frames
and published on the events API.

Signals:
  SIGINT, SIGTERM  stop the radio and exit
  SIGHUP           reset the radio and restart the current role

Exit codes:
  0 - Stopped by signal
  1 - Startup or serial link error
  3 - Unrecoverable radio error, system reset requested`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runRole, "role", "", "Role: station or ap (default from config)")
	runCmd.Flags().BoolVar(&runPromptPassword, "prompt-password", false, "Prompt for the role's Wi-Fi password")
}

// resetSignal turns a system reset request into a process exit
type resetSignal chan error

func (r resetSignal) SystemReset(reason error) {
	select {
	case r <- reason:
	default:
	}
}

// logIndicator reports status LED changes in the log
type logIndicator struct {
	log *zap.Logger
}

func (l logIndicator) SetIndicator(i wifi.Indication) {
	l.log.Debug("indicator", zap.Stringer("mode", i))
}

// fanout sends status snapshots to several notifiers
type fanout []wifi.Notifier

func (f fanout) Notify(st wifi.Status) {
	for _, n := range f {
		n.Notify(st)
	}
}

// statusLogger logs phase and error transitions
type statusLogger struct {
	log  *zap.Logger
	mu   sync.Mutex
	last wifi.Status
}

func (s *statusLogger) Notify(st wifi.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Phase != s.last.Phase || st.LastError != s.last.LastError || st.Running != s.last.Running {
		s.log.Info("link",
			zap.Stringer("role", st.Role),
			zap.Bool("running", st.Running),
			zap.String("phase", st.Phase),
			zap.Stringer("lastError", st.LastError),
			zap.String("ip", st.IP),
		)
	}
	s.last = st
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runRole != "" {
		cfg.Wifi.Role = runRole
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	role := cfg.Role()

	if runPromptPassword {
		if err := promptRolePassword(cfg, role); err != nil {
			return err
		}
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	dev, connInfo, err := openRadio(cfg, log)
	if err != nil {
		return err
	}
	defer dev.Shutdown() //nolint:errcheck
	log.Info("starting", zap.String("connection", connInfo), zap.Stringer("role", role))

	hub := events.NewHub()
	parser := essproto.NewStreamParser(log, publishPacket(hub, log))
	resets := make(resetSignal, 1)

	mgr := wifi.New(dev, cfg.WifiConfig(), wifi.Options{
		Logger:    log,
		Parser:    parser,
		Indicator: logIndicator{log: log.Named("led")},
		Resetter:  resets,
		Notifier:  fanout{hub, &statusLogger{log: log.Named("status")}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Events.Listen != "" {
		srv := events.NewServer(mgr, hub, events.ServerOptions{Logger: log, Secret: cfg.Events.Secret})
		srv.AddStatus("parser", func() interface{} { return parser.Stats() })
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Events.Listen); err != nil {
				log.Error("events API stopped", zap.Error(err))
			}
		}()
	}

	if err := mgr.Start(role); err != nil {
		return fmt.Errorf("start %s: %w", role, err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	for {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				log.Info("restart requested")
				mgr.RequestRestart()
				continue
			}
			log.Info("stopping", zap.Stringer("signal", sig))
			mgr.Stop()
			return nil

		case reason := <-resets:
			log.Error("system reset", zap.Error(reason))
			mgr.Stop()
			cancel()
			_ = closeLog()
			_ = dev.Shutdown()
			os.Exit(exitSystemReset)

		case <-dev.Done():
			mgr.Stop()
			return errors.New("serial link to the Wi-Fi module closed")
		}
	}
}

// promptRolePassword asks for the secret of the role about to start
func promptRolePassword(cfg *config.Config, role wifi.Role) error {
	prompt := fmt.Sprintf("Password for %q", cfg.Wifi.Station.SSID)
	if role == wifi.RoleAccessPoint {
		prompt = fmt.Sprintf("Password for access point %q", cfg.Wifi.AccessPoint.SSID)
	}
	pw, err := GetPassword(prompt)
	if err != nil {
		return err
	}
	if role == wifi.RoleAccessPoint {
		cfg.Wifi.AccessPoint.Password = pw
	} else {
		cfg.Wifi.Station.Password = pw
	}
	return nil
}

// publishPacket forwards decoded controller packets to the events hub
func publishPacket(hub *events.Hub, log *zap.Logger) essproto.PacketHandler {
	return func(src wifi.Source, p *essproto.Packet) {
		if p.Type() == essproto.MsgStatusData {
			if st, err := essproto.ParseStatusData(p); err == nil {
				if err := hub.PublishValue(events.EventTelemetry, st); err != nil {
					log.Warn("publish telemetry", zap.Error(err))
				}
			}
		}
		info := events.PacketInfo{
			Source:  src.String(),
			Type:    p.Type(),
			Name:    essproto.FormatMessageType(p.Type()),
			Summary: essproto.FormatPayloadMap(p.Type(), p.PayloadMap()),
		}
		if err := hub.PublishValue(events.EventPacket, info); err != nil {
			log.Warn("publish packet", zap.Error(err))
		}
	}
}
