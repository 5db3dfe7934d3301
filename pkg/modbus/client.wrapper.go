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

package modbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"pidctl/pkg/logger"
	"strings"
	"sync"
	"time"

	wrapper "github.com/grid-x/modbus"
)

const maxBackoff = 30 * time.Second

// registerIO is the part of the grid-x client this package uses.
type registerIO interface {
	ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(ctx context.Context, address, quantity uint16, value []byte) ([]byte, error)
}

type Client struct {
	mu      sync.Mutex
	handler *wrapper.TCPClientHandler
	client  registerIO
	config  *Config
	log     *logger.Logger
	ctx     context.Context
}

// NewClient connects a Modbus TCP client, retrying with backoff until ctx is canceled.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	c := &Client{
		config: config,
		log:    logger.New("ModbusConn"),
		ctx:    ctx,
	}
	if err := c.connectWithRetry(); err != nil {
		return nil, err
	}
	return c, nil
}

// newWithIO builds a client around an existing register transport.
func newWithIO(ctx context.Context, config *Config, rio registerIO) *Client {
	return &Client{
		config: config,
		client: rio,
		log:    logger.New("ModbusConn"),
		ctx:    ctx,
	}
}

// connectWithRetry tries to connect until success or until the context is done.
func (c *Client) connectWithRetry() error {
	backoff := time.Second
	for {
		err := c.connect()
		if err == nil {
			return nil
		}
		c.log.Error("connect failed: %v (retrying in %v)", err, backoff)

		select {
		case <-c.ctx.Done():
			return fmt.Errorf("modbus connect: %w", c.ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// connect safely (re)connects the Modbus client once.
func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler != nil {
		_ = c.handler.Close()
	}

	conn := c.config.Connection
	url := fmt.Sprintf("%s:%d", conn.Host, conn.Port)
	handler := wrapper.NewTCPClientHandler(url)
	handler.SlaveID = conn.SlaveID
	handler.Timeout = time.Second * time.Duration(conn.Timeout)
	handler.ProtocolRecoveryTimeout = 250 * time.Millisecond
	handler.LinkRecoveryTimeout = 5 * time.Second

	c.log.Info("Connecting to %s...", url)
	if err := handler.Connect(c.ctx); err != nil {
		return fmt.Errorf("modbus connect failed: %w", err)
	}

	c.handler = handler
	c.client = wrapper.NewClient(handler)
	c.log.Info("Connected to %s", url)
	return nil
}

// retry runs op, reconnecting once if the failure looks like a broken link.
func (c *Client) retry(op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	if !isConnError(err) || c.handler == nil {
		return err
	}

	c.log.Error("connection error: %v, reconnecting", err)
	if rerr := c.connectWithRetry(); rerr != nil {
		return rerr
	}
	return op()
}

// ReadRegisters reads holding registers, reconnecting if needed.
func (c *Client) ReadRegisters(addr, quantity uint16) ([]byte, error) {
	var data []byte
	err := c.retry(func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		var rerr error
		data, rerr = c.client.ReadHoldingRegisters(c.ctx, addr, quantity)
		return rerr
	})
	return data, err
}

// WriteRegisters writes holding registers, reconnecting if needed.
func (c *Client) WriteRegisters(addr, quantity uint16, raw []byte) error {
	return c.retry(func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, err := c.client.WriteMultipleRegisters(c.ctx, addr, quantity, raw)
		return err
	})
}

// Close closes the underlying handler.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		_ = c.handler.Close()
	}
}

func isConnError(err error) bool {
	if err == nil {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "closed by the remote host") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused")
}
