// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package zwavejsws

import (
	"context"
	"encoding/json"
	"errors"
	"pidctl/pkg/logger"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SEE: https://github.com/zwave-js/zwave-js-server#api

// Response from zwave-js
type Response struct {
	Type string `json:"type"`

	// result type
	MessageId string          `json:"messageId,omitempty"`
	Success   bool            `json:"success,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`

	// event type
	Event json.RawMessage `json:"event,omitempty"`
}

// Result from a "start_listening" command
type Result struct {
	State State `json:"state"`
}

type State struct {
	Nodes json.RawMessage `json:"nodes"`
}

// Node represents a zwave-js node
type Node struct {
	Name     string          `json:"name"`
	Location string          `json:"location"`
	NodeID   int             `json:"nodeId"`
	Values   json.RawMessage `json:"values"`
}

// Value is one entry of a node's value list.
type Value struct {
	CommandClass int    `json:"commandClass"`
	Endpoint     int    `json:"endpoint"`
	Property     any    `json:"property"`
	PropertyName string `json:"propertyName"`
	Value        any    `json:"value"`
	Metadata     struct {
		Unit string `json:"unit,omitempty"`
	} `json:"metadata"`
}

// Event represents a parsed zwave-js event
type Event struct {
	Type   string          `json:"event"`
	NodeID int             `json:"nodeId,omitempty"`
	Source string          `json:"source,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// UpdatedValue are the Event Args for "value updated" events
type UpdatedValue struct {
	CommandClass int    `json:"commandClass"`
	Endpoint     int    `json:"endpoint"`
	NewValue     any    `json:"newValue"`
	PrevValue    any    `json:"prevValue"`
	Property     any    `json:"property"`
	PropertyName string `json:"propertyName"`
}

var errNotConnected = errors.New("zwave: not connected")

// Client follows a zwave-js server: it sends the initial state to OnState
// after every (re)connect and each node event to OnEvent.
type Client struct {
	url       string
	conn      *websocket.Conn
	mu        sync.Mutex
	onState   func(State)
	onEvent   func(Event)
	retryWait time.Duration
	log       *logger.Logger
}

func NewClient(url string) *Client {
	return &Client{
		url:       url,
		retryWait: 5 * time.Second,
		log:       logger.New("ZWaveJS"),
	}
}

func (c *Client) WithLogger(log *logger.Logger) *Client {
	c.log = log
	return c
}

// OnState sets the callback when current state is received
func (c *Client) OnState(fn func(State)) {
	c.onState = fn
}

// OnEvent sets the callback when an event is received
func (c *Client) OnEvent(fn func(Event)) {
	c.onEvent = fn
}

// Run keeps a connection open until ctx is cancelled, reconnecting after
// failures.
func (c *Client) Run(ctx context.Context) {
	defer c.Close()
	for ctx.Err() == nil {
		if err := c.Connect(ctx); err != nil {
			c.log.Error("connect %s: %v, retrying in %s", c.url, err, c.retryWait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryWait):
			}
			continue
		}
		for {
			if err := c.ListenNext(); err != nil {
				if ctx.Err() == nil {
					c.log.Error("read: %v", err)
				}
				c.Close()
				break
			}
		}
	}
}

// Connect dials the server and subscribes to its events. The connection is
// closed when ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// already connected
	if c.conn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	for _, cmd := range []map[string]any{
		{"messageId": "initialize", "command": "initialize", "schemaVersion": 1},
		{"messageId": "start_listening", "command": "start_listening"},
	} {
		if err := conn.WriteJSON(cmd); err != nil {
			conn.Close()
			return err
		}
	}

	c.conn = conn
	context.AfterFunc(ctx, c.Close)
	c.log.Info("Connected to %s", c.url)
	return nil
}

// Close drops the current connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.log.Info("Closed")
	}
}

// ListenNext blocks for the next message and dispatches it.
func (c *Client) ListenNext() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.log.Error("unmarshal of zwave-js message: %v", err)
		return nil
	}

	switch resp.Type {
	case "result":
		return c.handleResult(resp)
	case "event":
		c.handleEvent(resp)
	default:
		c.log.Debug("unhandled zwave-js message type: %s", resp.Type)
	}
	return nil
}

func (c *Client) handleResult(resp Response) error {
	if !resp.Success {
		if resp.MessageId == "start_listening" {
			return errors.New("zwave: start_listening failed")
		}
		c.log.Error("messageId '%s' failed", resp.MessageId)
		return nil
	}
	if resp.MessageId != "start_listening" {
		return nil
	}

	var result Result
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return err
	}
	if c.onState != nil {
		c.onState(result.State)
	}
	return nil
}

func (c *Client) handleEvent(resp Response) {
	if c.onEvent == nil {
		return
	}
	var event Event
	if err := json.Unmarshal(resp.Event, &event); err != nil {
		c.log.Error("unmarshal of zwave-js event: %v", err)
		return
	}
	c.onEvent(event)
}
