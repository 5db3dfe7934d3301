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

// Package params binds a loop's tunable values (set point, gains, enabled) to
// the places that hold them: config constants, in-process values or modbus registers.
package params

import (
	"errors"
	"fmt"
	"math"
	"pidctl/pkg/modbus"
	"sync"
)

var ErrReadOnly = errors.New("target is read-only")

type Target interface {
	Get() (float64, error)
	Set(v float64) error
	Writable() bool
}

// Static is a constant from the config file.
type Static float64

func (s Static) Get() (float64, error) { return float64(s), nil }
func (s Static) Set(float64) error     { return ErrReadOnly }
func (s Static) Writable() bool        { return false }

// Memory is a value held in process, changed by commands or the tuner.
type Memory struct {
	mu sync.RWMutex
	v  float64
}

func NewMemory(v float64) *Memory {
	return &Memory{v: v}
}

func (m *Memory) Get() (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v, nil
}

func (m *Memory) Set(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("value %v is not finite", v)
	}
	m.mu.Lock()
	m.v = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) Writable() bool { return true }

// RegisterClient is the part of the modbus client a Register needs.
type RegisterClient interface {
	Register(name string) (modbus.RegisterDef, error)
	ReadFloat(name string) (float64, error)
	WriteFloat(name string, v float64) error
}

// Register is a named holding register on the configured modbus device.
type Register struct {
	client   RegisterClient
	name     string
	writable bool
}

func NewRegister(client RegisterClient, name string) (*Register, error) {
	def, err := client.Register(name)
	if err != nil {
		return nil, err
	}
	return &Register{client: client, name: name, writable: def.Writable}, nil
}

func (r *Register) Get() (float64, error) {
	return r.client.ReadFloat(r.name)
}

func (r *Register) Set(v float64) error {
	if !r.writable {
		return fmt.Errorf("register %q: %w", r.name, ErrReadOnly)
	}
	return r.client.WriteFloat(r.name, v)
}

func (r *Register) Writable() bool { return r.writable }

func (r *Register) String() string { return "modbus:" + r.name }
