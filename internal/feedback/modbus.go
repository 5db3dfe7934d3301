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

package feedback

import "context"

// RegisterReader is the part of the modbus client a ModbusReader needs.
type RegisterReader interface {
	ReadFloat(name string) (float64, error)
}

// ModbusReader reads a named holding register.
type ModbusReader struct {
	client   RegisterReader
	register string
}

func NewModbusReader(client RegisterReader, register string) *ModbusReader {
	return &ModbusReader{client: client, register: register}
}

func (m *ModbusReader) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.client.ReadFloat(m.register)
}
