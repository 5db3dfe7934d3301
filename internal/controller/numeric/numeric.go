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

// Package numeric holds the small math helpers shared by the PID engine,
// the autotuner and the output stage.
package numeric

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Clamp limits v to [lo, hi]. NaN is passed through.
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Mean is the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// SolveLine fits a line through (x0, y0) and (x1, y1) and returns the x at which
// it reaches y. ok is false when the line is flat or vertical.
func SolveLine(x0, y0, x1, y1, y float64) (x float64, ok bool) {
	if x1 == x0 {
		return 0, false
	}
	slope := (y1 - y0) / (x1 - x0)
	if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0, false
	}
	return x0 + (y-y0)/slope, true
}

type RoundMode string

const (
	RoundNearest RoundMode = "round"
	RoundFloor   RoundMode = "floor"
	RoundCeil    RoundMode = "ceil"
)

func ParseRoundMode(s string) (RoundMode, error) {
	switch RoundMode(s) {
	case RoundNearest, RoundFloor, RoundCeil:
		return RoundMode(s), nil
	case "":
		return RoundNearest, nil
	default:
		return "", fmt.Errorf("unknown round mode %q", s)
	}
}

// Round rounds v to precision decimal places. Negative precision rounds to tens, hundreds...
func Round(v float64, precision int, mode RoundMode) float64 {
	scale := math.Pow(10, float64(precision))
	switch mode {
	case RoundFloor:
		return math.Floor(v*scale) / scale
	case RoundCeil:
		return math.Ceil(v*scale) / scale
	default:
		return math.Round(v*scale) / scale
	}
}
