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

package controller

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	historyRetention = 24 * time.Hour
	historyStep      = 0.33
	historyMaxGap    = 5 * time.Minute
)

// HistoryEntry is one point of a loop's trend.
type HistoryEntry struct {
	Time     time.Time `json:"time"`
	Feedback float64   `json:"feedback"`
	SetPoint float64   `json:"set_point"`
	Output   float64   `json:"output"`
}

// history keeps a thinned 24h trend: a point is saved when feedback, set point
// or output moved by at least step, or when maxGap passed since the last one.
type history struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	step    float64
	maxGap  time.Duration
}

func newHistory() *history {
	return &history{
		entries: make([]HistoryEntry, 0, 1024),
		step:    historyStep,
		maxGap:  historyMaxGap,
	}
}

func (h *history) record(e HistoryEntry) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.entries); n > 0 {
		last := h.entries[n-1]
		if !e.Time.After(last.Time) {
			return false
		}
		if e.Time.Sub(last.Time) < h.maxGap &&
			math.Abs(e.Feedback-last.Feedback) < h.step &&
			math.Abs(e.SetPoint-last.SetPoint) < h.step &&
			math.Abs(e.Output-last.Output) < h.step {
			return false
		}
	}
	h.entries = append(h.entries, e)

	cutoff := e.Time.Add(-historyRetention)
	idx := sort.Search(len(h.entries), func(i int) bool {
		return !h.entries[i].Time.Before(cutoff)
	})
	if idx > 0 {
		h.entries = append([]HistoryEntry(nil), h.entries[idx:]...)
	}
	return true
}

func (h *history) snapshot() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// History returns the loop's trend for the last 24h, oldest first.
func (c *Controller) History() []HistoryEntry {
	return c.history.snapshot()
}

func (c *Controller) serveHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(c.history.snapshot())
}

func (c *Controller) serveChart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(chartPage))
}

const chartPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8" />
<title>Loop trend (24h)</title>
<style>
body { font-family: system-ui, -apple-system, "Segoe UI", Roboto, "Helvetica Neue", Arial; padding: 24px }
.container { max-width: 900px; margin: 0 auto }
.card { border-radius: 8px; padding: 16px; box-shadow: 0 2px 6px rgba(0,0,0,0.08) }
</style>
</head>
<body>
<div class="container">
<h1>Loop trend (last 24h)</h1>
<div class="card">
<canvas id="chart" width="860" height="300"></canvas>
</div>
<p>Auto-updates every 30s.</p>
</div>

<script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
<script>
let chart;
async function render() {
  const res = await fetch('./history');
  const data = await res.json();
  const labels = data.map(d => new Date(d.time).toLocaleTimeString());
  const sets = [
    { label: 'feedback', data: data.map(d => d.feedback), tension: 0.2 },
    { label: 'set point', data: data.map(d => d.set_point), stepped: true },
    { label: 'output', data: data.map(d => d.output), yAxisID: 'out' },
  ];
  if (!chart) {
    chart = new Chart(document.getElementById('chart').getContext('2d'), {
      type: 'line',
      data: { labels, datasets: sets },
      options: { scales: { y: { beginAtZero: false }, out: { position: 'right' } } }
    });
  } else {
    chart.data.labels = labels;
    chart.data.datasets.forEach((ds, i) => ds.data = sets[i].data);
    chart.update();
  }
}

render();
setInterval(render, 30_000);
</script>
</body>
</html>`
