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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"pidctl/internal/config"
	"pidctl/internal/emoncms"
	"pidctl/pkg/appctx"
	"pidctl/pkg/eventbus"
	"pidctl/pkg/logger"
	"pidctl/pkg/modbus"
	"pidctl/pkg/rootserv"
	"pidctl/pkg/service"
	"pidctl/pkg/sysmon"
)

func main() {
	os.Exit(run())
}

func run() int {
	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}

	logPath := filepath.Join(rootdir, "var/logs/pidctl.log")
	if err := logger.Init(logPath); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer logger.Close()
	log := logger.New("Main")

	confPath := filepath.Join(rootdir, "var/config/pidctl.yml")
	if p := os.Getenv("PIDCTL_CONFIG"); p != "" {
		confPath = p
	}
	conf, err := config.Load(confPath)
	if err != nil {
		log.Error("config %s: %v", confPath, err)
		return 1
	}
	log.Info("log=%s config=%s loops=%d", logPath, confPath, len(conf.Loops))

	ctx, ctxCancel := appctx.New(context.Background())
	defer ctxCancel()

	bus := eventbus.New()
	defer bus.Close()

	var regs *modbus.Client
	if conf.Modbus.Enabled() {
		regs, err = modbus.NewClient(ctx, conf.Modbus)
		if err != nil {
			log.Error("modbus: %v", err)
			return 1
		}
		defer regs.Close()
	}

	server := rootserv.New(conf.HTTPAddr)
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/monitor", "System Monitor", sysmon.New())
	server.Attach("/bus", "Event Bus Stats", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(bus.Stats())
	}))

	runnables := []service.Runnable{server}
	var sources []emoncms.DataSource
	for _, lc := range conf.Loops {
		l, err := buildLoop(ctx, lc, regs, bus)
		if err != nil {
			log.Error("%v", err)
			return 1
		}
		defer l.close()

		server.Attach("/loops/"+lc.Name, "Loop "+lc.Name, l.controller)
		runnables = append(runnables, l.runners...)
		sources = append(sources, l.controller)
	}

	if conf.Telemetry.EmonCMSAddr != "" {
		runnables = append(runnables, emoncms.New(conf.Telemetry, sources))
	}

	// waits for all services to stop
	return <-service.Start(ctx, ctxCancel, runnables)
}
