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

import (
	"context"
	"pidctl/pkg/sysmon"
)

// HostReader reads a metric of the machine the daemon runs on, such as the
// CPU temperature for a fan loop.
type HostReader struct {
	metric sysmon.Metric
	read   func(sysmon.Metric) (float64, error)
}

func NewHostReader(metric sysmon.Metric) *HostReader {
	return &HostReader{metric: metric, read: sysmon.Read}
}

func (h *HostReader) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return h.read(h.metric)
}
