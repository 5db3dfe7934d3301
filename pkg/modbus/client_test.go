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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegisters struct {
	mem     map[uint16]uint16
	readErr error
}

func (f *fakeRegisters) ReadHoldingRegisters(_ context.Context, address, quantity uint16) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]byte, 0, quantity*2)
	for i := uint16(0); i < quantity; i++ {
		out = append(out, uint16ToBytes(f.mem[address+i])...)
	}
	return out, nil
}

func (f *fakeRegisters) WriteMultipleRegisters(_ context.Context, address, quantity uint16, value []byte) ([]byte, error) {
	for i := uint16(0); i < quantity; i++ {
		f.mem[address+i] = uint16(value[2*i])<<8 | uint16(value[2*i+1])
	}
	return nil, nil
}

func testConfig() *Config {
	return &Config{
		Registers: map[string]RegisterDef{
			"tank_temp":  {Address: 10, DataType: "int16", Scale: 0.1},
			"valve":      {Address: 20, DataType: "float32", Writable: true},
			"pid_p":      {Address: 30, DataType: "uint16", Scale: 0.01, Writable: true},
			"pid_enable": {Address: 40, DataType: "bool", Writable: true},
			"readonly":   {Address: 50, DataType: "uint16"},
		},
	}
}

func TestReadFloat_ScaledSigned(t *testing.T) {
	rio := &fakeRegisters{mem: map[uint16]uint16{10: uint16(0xFFFF - 24)}} // -25
	c := newWithIO(context.Background(), testConfig(), rio)

	v, err := c.ReadFloat("tank_temp")
	require.NoError(t, err)
	assert.InDelta(t, -2.5, v, 1e-9)
}

func TestWriteThenRead_RoundTripsThroughWireFormat(t *testing.T) {
	rio := &fakeRegisters{mem: map[uint16]uint16{}}
	c := newWithIO(context.Background(), testConfig(), rio)

	require.NoError(t, c.WriteFloat("valve", 37.5))
	v, err := c.ReadFloat("valve")
	require.NoError(t, err)
	assert.InDelta(t, 37.5, v, 1e-6)

	require.NoError(t, c.WriteFloat("pid_p", 1.23))
	assert.Equal(t, uint16(123), rio.mem[30])

	require.NoError(t, c.WriteFloat("pid_enable", 1))
	assert.Equal(t, uint16(0xFFFF), rio.mem[40])
	v, err = c.ReadFloat("pid_enable")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestWriteFloat_Errors(t *testing.T) {
	c := newWithIO(context.Background(), testConfig(), &fakeRegisters{mem: map[uint16]uint16{}})

	assert.ErrorContains(t, c.WriteFloat("missing", 1), "not configured")
	assert.ErrorContains(t, c.WriteFloat("readonly", 1), "not writable")
	assert.ErrorContains(t, c.WriteFloat("pid_p", 1000), "out of uint16 range")
}

func TestReadFloat_PropagatesTransportError(t *testing.T) {
	rio := &fakeRegisters{readErr: errors.New("exception 2")}
	c := newWithIO(context.Background(), testConfig(), rio)

	_, err := c.ReadFloat("tank_temp")
	assert.ErrorContains(t, err, "exception 2")
}

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	cfg.Registers["bad"] = RegisterDef{DataType: "int32"}
	assert.ErrorContains(t, cfg.Validate(), "unsupported data type")
}
