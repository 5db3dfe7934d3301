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
	"fmt"
	"html/template"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Metric names a host measurement usable as loop feedback.
type Metric string

const (
	CPUPercent  Metric = "cpu_percent"
	MemPercent  Metric = "mem_percent"
	DiskPercent Metric = "disk_percent"
	CPUTemp     Metric = "cpu_temp"
)

var Metrics = []Metric{CPUPercent, MemPercent, DiskPercent, CPUTemp}

// ParseMetric validates a metric name from configuration.
func ParseMetric(s string) (Metric, error) {
	for _, m := range Metrics {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown host metric %q", s)
}

// Read samples one host metric. Percentages are in [0,100], temperatures in °C.
func Read(m Metric) (float64, error) {
	switch m {
	case CPUPercent:
		pct, err := cpu.Percent(0, false)
		if err != nil {
			return 0, fmt.Errorf("cpu percent: %w", err)
		}
		if len(pct) == 0 {
			return 0, fmt.Errorf("cpu percent: no data")
		}
		return pct[0], nil

	case MemPercent:
		vmem, err := mem.VirtualMemory()
		if err != nil {
			return 0, fmt.Errorf("virtual memory: %w", err)
		}
		return vmem.UsedPercent, nil

	case DiskPercent:
		total, _, used, err := DiskUsage("/")
		if err != nil {
			return 0, fmt.Errorf("disk usage: %w", err)
		}
		if total == 0 {
			return 0, nil
		}
		return 100 * float64(used) / float64(total), nil

	case CPUTemp:
		// gopsutil reports unreadable sensors as warnings next to valid readings
		temps, err := host.SensorsTemperatures()
		if t, ok := pickCPUTemp(temps); ok {
			return t, nil
		}
		if err != nil {
			return 0, fmt.Errorf("sensors: %w", err)
		}
		return 0, fmt.Errorf("no temperature sensors found")

	default:
		return 0, fmt.Errorf("unknown host metric %q", m)
	}
}

var cpuSensorKeys = []string{"coretemp", "k10temp", "cpu", "soc", "thermal_zone0"}

// pickCPUTemp prefers well-known CPU sensor keys and falls back to the hottest sensor.
func pickCPUTemp(temps []host.TemperatureStat) (float64, bool) {
	if len(temps) == 0 {
		return 0, false
	}
	for _, key := range cpuSensorKeys {
		for _, t := range temps {
			if strings.Contains(strings.ToLower(t.SensorKey), key) && t.Temperature > 0 {
				return t.Temperature, true
			}
		}
	}
	sorted := append([]host.TemperatureStat(nil), temps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Temperature > sorted[j].Temperature })
	return sorted[0].Temperature, true
}

type Service struct{}

func New() *Service {
	return &Service{}
}

var monitorPage = template.Must(template.New("monitor").Parse(`<!DOCTYPE html>
<html><head><title>System Monitor</title>
<style>
  body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
  table { border-collapse: collapse; }
  th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
</style></head>
<body>
  <h1>System Monitor</h1>
  <p>Go {{.go_version}}, process RSS {{printf "%.1f" .process_rss_mb}} MB</p>
  <table>
    <tr><th>Metric</th><th>Value</th></tr>
    {{range $k, $v := .metrics}}<tr><td>{{$k}}</td><td>{{printf "%.2f" $v}}</td></tr>{{end}}
  </table>
</body></html>`))

func (s *Service) snapshot() map[string]any {
	values := map[string]float64{}
	for _, m := range Metrics {
		if v, err := Read(m); err == nil {
			values[string(m)] = v
		}
	}

	var rssMB float64
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			rssMB = float64(memInfo.RSS) / (1024 * 1024)
		}
	}

	return map[string]any{
		"go_version":     runtime.Version(),
		"process_rss_mb": rssMB,
		"metrics":        values,
	}
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data := s.snapshot()

	if r.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(data)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = monitorPage.Execute(w, data)
}
