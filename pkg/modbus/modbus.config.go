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

import "fmt"

type Config struct {
	Connection ConnectionConfig       `yaml:"connection"`
	Registers  map[string]RegisterDef `yaml:"registers"`
}

type ConnectionConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	SlaveID byte   `yaml:"slave_id"`
	Timeout int    `yaml:"timeout"` // seconds
}

type RegisterDef struct {
	Address     uint16  `yaml:"address"`
	DataType    string  `yaml:"data_type"` // "uint16", "int16", "bool", "float32"
	Scale       float64 `yaml:"scale"`     // if set, int registers are read as scaled floats
	Offset      float64 `yaml:"offset"`
	Description string  `yaml:"description"`
	Writable    bool    `yaml:"writable"`
}

// Enabled reports whether a modbus device is configured at all.
func (c *Config) Enabled() bool {
	return c != nil && c.Connection.Host != ""
}

// ApplyDefaults fills unset connection fields.
func (c *Config) ApplyDefaults() {
	if c.Connection.Port == 0 {
		c.Connection.Port = 502
	}
	if c.Connection.SlaveID == 0 {
		c.Connection.SlaveID = 1
	}
	if c.Connection.Timeout == 0 {
		c.Connection.Timeout = 5
	}
}

// Validate checks every register has a supported data type.
func (c *Config) Validate() error {
	for name, reg := range c.Registers {
		if _, err := registerCount(reg.DataType); err != nil {
			return fmt.Errorf("modbus register %q: %w", name, err)
		}
	}
	return nil
}

// Register looks up a register definition by name.
func (c *Config) Register(name string) (RegisterDef, error) {
	reg, ok := c.Registers[name]
	if !ok {
		return RegisterDef{}, fmt.Errorf("register %q not configured", name)
	}
	return reg, nil
}
