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

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.einride.tech/can"
)

// CANSignal places the output in a frame as an unsigned little-endian signal:
// raw = round((value - Offset) / Factor).
type CANSignal struct {
	ID        uint32
	Extended  bool
	Length    uint8 // frame DLC
	StartBit  uint8
	BitLength uint8
	Factor    float64
	Offset    float64
}

func (s *CANSignal) applyDefaults() {
	if s.Length == 0 {
		s.Length = 8
	}
	if s.BitLength == 0 {
		s.BitLength = 16
	}
	if s.Factor == 0 {
		s.Factor = 0.01
	}
}

// Encode builds the frame carrying value. Values outside the signal range saturate.
func (s CANSignal) Encode(value float64) (can.Frame, error) {
	s.applyDefaults()
	if s.Length > 8 {
		return can.Frame{}, fmt.Errorf("invalid DLC %d", s.Length)
	}
	if s.BitLength > 64 || int(s.StartBit)+int(s.BitLength) > int(s.Length)*8 {
		return can.Frame{}, fmt.Errorf("signal bits %d+%d do not fit in %d bytes", s.StartBit, s.BitLength, s.Length)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return can.Frame{}, fmt.Errorf("value %v is not finite", value)
	}

	raw := math.Round((value - s.Offset) / s.Factor)
	mask := uint64(math.MaxUint64) >> (64 - s.BitLength)
	var bits uint64
	switch {
	case raw <= 0:
	case raw >= float64(mask):
		bits = mask
	default:
		bits = uint64(raw)
	}

	f := can.Frame{ID: s.ID, Length: s.Length, IsExtended: s.Extended}
	f.Data.SetUnsignedBitsLittleEndian(s.StartBit, s.BitLength, bits)
	if err := f.Validate(); err != nil {
		return can.Frame{}, err
	}
	return f, nil
}

// FrameTransmitter sends frames; *socketcan.Transmitter satisfies it.
type FrameTransmitter interface {
	TransmitFrame(ctx context.Context, f can.Frame) error
}

// CAN transmits the output as one frame per write.
type CAN struct {
	tx      FrameTransmitter
	signal  CANSignal
	timeout time.Duration
	close   func() error
}

func NewCAN(tx FrameTransmitter, signal CANSignal) *CAN {
	return &CAN{tx: tx, signal: signal, timeout: time.Second}
}

func (c *CAN) Write(value float64) error {
	f, err := c.signal.Encode(value)
	if err != nil {
		return fmt.Errorf("can encode: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.tx.TransmitFrame(ctx, f); err != nil {
		return fmt.Errorf("can transmit: %w", err)
	}
	return nil
}

func (c *CAN) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}
