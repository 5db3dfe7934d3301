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

package actuator

// RegisterWriter is the part of the modbus client the Modbus sink needs.
type RegisterWriter interface {
	WriteFloat(name string, value float64) error
}

// Modbus writes the output to a named holding register.
type Modbus struct {
	client   RegisterWriter
	register string
}

func NewModbus(client RegisterWriter, register string) *Modbus {
	return &Modbus{client: client, register: register}
}

func (m *Modbus) Write(value float64) error {
	return m.client.WriteFloat(m.register, value)
}
