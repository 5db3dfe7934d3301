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

package emoncms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"pidctl/internal/config"
	"pidctl/pkg/logger"
	"time"
)

// DataSource is a loop whose diagnostics are uploaded as one emoncms node.
type DataSource interface {
	Name() string
	GetData() map[string]float64
}

// Uploader periodically posts every loop's diagnostics to emoncms.
type Uploader struct {
	addr     string
	apiKey   string
	interval time.Duration
	client   *http.Client
	log      *logger.Logger
	sources  []DataSource
}

func New(conf config.TelemetryConfig, sources []DataSource) *Uploader {
	return &Uploader{
		addr:     conf.EmonCMSAddr,
		apiKey:   conf.EmonCMSApiKey,
		interval: conf.Interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      logger.New("DataLogger"),
		sources:  sources,
	}
}

func (c *Uploader) emoncmsInputPost(node string, data map[string]float64) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	q := url.Values{}
	q.Set("node", node)
	q.Set("apikey", c.apiKey)
	q.Set("fulljson", string(bytes))

	resp, err := c.client.Get(c.addr + "/input/post?" + q.Encode())
	if err != nil {
		return fmt.Errorf("http.Get: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("emoncms: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Uploader) tick() {
	for _, src := range c.sources {
		data := src.GetData()
		if len(data) == 0 {
			c.log.Debug("no data yet for %s", src.Name())
			continue
		}
		if err := c.emoncmsInputPost(src.Name(), data); err != nil {
			c.log.Error("emoncmsInputPost %s: %v", src.Name(), err)
		}
	}
}

func (c *Uploader) Run(ctx context.Context) {
	c.log.Info("Running...")
	defer c.log.Info("Stopped.")

	tick := time.NewTicker(c.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.tick()
		}
	}
}
