// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Thermoquad/esslink/pkg/wifi"
)

const (
	pingInterval = 20 * time.Second
	writeWait    = 5 * time.Second
	maxControl   = 4096
)

// Controller is the part of the link manager remote clients may drive
type Controller interface {
	Status() wifi.Status
	Start(role wifi.Role) error
	Stop()
	RequestRestart()
	SwitchRole(role wifi.Role) error
}

// Control actions
const (
	ActionRestart = "restart"
	ActionStop    = "stop"
	ActionStart   = "start"
	ActionSwitch  = "switch"
)

// Control is an inbound websocket message
type Control struct {
	Action string `json:"action"`
	Role   string `json:"role,omitempty"`
}

// ControlResult answers one Control
type ControlResult struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Server exposes status and the event stream over HTTP
type Server struct {
	ctrl   Controller
	hub    *Hub
	auth   *Verifier
	log    *zap.Logger
	extras map[string]func() interface{}
}

// ServerOptions configures a Server
type ServerOptions struct {
	Logger *zap.Logger
	Secret string // HS256 secret; empty disables auth
}

func NewServer(ctrl Controller, hub *Hub, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		ctrl:   ctrl,
		hub:    hub,
		auth:   NewVerifier(opts.Secret),
		log:    opts.Logger.Named("events"),
		extras: make(map[string]func() interface{}),
	}
}

// AddStatus adds a named section to the status document. Call before
// serving.
func (s *Server) AddStatus(name string, fn func() interface{}) {
	s.extras[name] = fn
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", s.health)
	mux.Handle("GET /api/v1/status", s.auth.Middleware(http.HandlerFunc(s.status)))
	mux.Handle("GET /api/v1/events", s.auth.Middleware(http.HandlerFunc(s.eventStream)))
	return withLogging(s.log, mux)
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", zap.String("addr", addr), zap.Bool("auth", s.auth.Enabled()))

	select {
	case err := <-errc:
		return fmt.Errorf("events server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("events server shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	doc := map[string]interface{}{
		"wifi":        s.ctrl.Status(),
		"subscribers": s.hub.Len(),
		"time":        time.Now().UTC().Format(time.RFC3339),
	}
	for name, fn := range s.extras {
		doc[name] = fn()
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) eventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ch, unsub := s.hub.Subscribe()
	defer unsub()

	replies := make(chan ControlResult, 4)
	readerDone := make(chan struct{})
	go s.readControls(conn, replies, readerDone)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	s.log.Debug("client connected", zap.String("remote", r.RemoteAddr))
	defer s.log.Debug("client disconnected", zap.String("remote", r.RemoteAddr))

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := s.write(conn, ev); err != nil {
				return
			}
		case res := <-replies:
			ev, err := NewEvent(EventControl, res)
			if err != nil {
				continue
			}
			if err := s.write(conn, ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, ev Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	if err := conn.WriteJSON(ev); err != nil {
		s.log.Debug("ws write", zap.Error(err))
		return err
	}
	return nil
}

// readControls runs the client's control messages until the connection
// fails
func (s *Server) readControls(conn *websocket.Conn, replies chan<- ControlResult, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxControl)
	for {
		var c Control
		var res ControlResult
		if err := conn.ReadJSON(&c); err != nil {
			var syntax *json.SyntaxError
			var typ *json.UnmarshalTypeError
			if !errors.As(err, &syntax) && !errors.As(err, &typ) {
				return
			}
			res = ControlResult{Error: "malformed control message"}
		} else {
			res = s.apply(c)
		}
		select {
		case replies <- res:
		default:
			s.log.Warn("control reply dropped", zap.String("action", c.Action))
		}
	}
}

func (s *Server) apply(c Control) ControlResult {
	res := ControlResult{Action: c.Action, OK: true}
	var err error
	switch c.Action {
	case ActionRestart:
		s.ctrl.RequestRestart()
	case ActionStop:
		s.ctrl.Stop()
	case ActionStart, ActionSwitch:
		var role wifi.Role
		if role, err = wifi.ParseRole(c.Role); err != nil {
			break
		}
		if c.Action == ActionStart {
			err = s.ctrl.Start(role)
		} else {
			err = s.ctrl.SwitchRole(role)
		}
	default:
		err = fmt.Errorf("unknown action %q", c.Action)
	}
	if err != nil {
		res.OK = false
		res.Error = err.Error()
	}
	s.log.Info("control", zap.String("action", c.Action), zap.String("role", c.Role), zap.Error(err))
	return res
}

func withLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.code),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	code int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.code = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot hijack")
	}
	rw.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
