// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package events

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a connection to a Server's event stream
type Client struct {
	conn      *websocket.Conn
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	writeMu sync.Mutex

	mu  sync.Mutex
	err error
}

// Dial connects to url, an events endpoint such as
// ws://host:8080/api/v1/events. token may be empty when auth is disabled.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{conn: conn, events: make(chan Event, subscriberBuffer), done: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// Events delivers server events. It is closed when the connection ends.
func (c *Client) Events() <-chan Event { return c.events }

// Err returns the error that ended the stream
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send issues a control request. The result arrives as an EventControl.
func (c *Client) Send(ctl Control) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	if err := c.conn.WriteJSON(ctl); err != nil {
		return fmt.Errorf("send %s: %w", ctl.Action, err)
	}
	return nil
}

// Close sends a close frame and drops the connection
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) //nolint:errcheck
	c.writeMu.Unlock()
	return c.conn.Close()
}
