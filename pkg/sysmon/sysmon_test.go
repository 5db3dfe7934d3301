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

package sysmon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("cpu_temp")
	require.NoError(t, err)
	assert.Equal(t, CPUTemp, m)

	_, err = ParseMetric("gpu_temp")
	assert.ErrorContains(t, err, "unknown host metric")
}

func TestPickCPUTemp(t *testing.T) {
	_, ok := pickCPUTemp(nil)
	assert.False(t, ok)

	temps := []host.TemperatureStat{
		{SensorKey: "nvme_composite", Temperature: 61},
		{SensorKey: "coretemp_package_id_0", Temperature: 48},
	}
	v, ok := pickCPUTemp(temps)
	require.True(t, ok)
	assert.Equal(t, 48.0, v)

	v, ok = pickCPUTemp([]host.TemperatureStat{
		{SensorKey: "acpitz", Temperature: 30},
		{SensorKey: "nvme", Temperature: 55},
	})
	require.True(t, ok)
	assert.Equal(t, 55.0, v, "falls back to hottest sensor")
}

func TestService_JSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	New().ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "go_version")
	assert.Contains(t, body, "metrics")
}
