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
	"net/http"
	"pidctl/internal/events"
	"pidctl/pkg/logger"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

type clientSet struct {
	clients map[*websocket.Conn]bool
	mutex   sync.Mutex
}

func newClientSet() *clientSet {
	return &clientSet{clients: make(map[*websocket.Conn]bool)}
}

func (c *clientSet) broadcast(pm *websocket.PreparedMessage, log *logger.Logger) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		if err := ws.WritePreparedMessage(pm); err != nil {
			log.Error("failed to write message: %v", err)
			ws.Close()
			delete(c.clients, ws)
		}
	}
}

// join sends the current state and registers ws for broadcasts. Writes happen
// under the mutex so they never interleave with a broadcast.
func (c *clientSet) join(ws *websocket.Conn, current any) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := ws.WriteJSON(current); err != nil {
		return err
	}
	c.clients[ws] = true
	return nil
}

func (c *clientSet) remove(ws *websocket.Conn) {
	c.mutex.Lock()
	delete(c.clients, ws)
	c.mutex.Unlock()
}

func (c *clientSet) closeAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		ws.Close()
		delete(c.clients, ws)
	}
}

// ServeHTTP implements http.Handler
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.handler.ServeHTTP(w, r)
}

func (c *Controller) buildHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", c.serveState)
	mux.HandleFunc("POST /command", c.serveCommand)
	mux.HandleFunc("GET /ws", c.serveWebSockets())
	mux.HandleFunc("GET /history", c.serveHistory)
	mux.HandleFunc("GET /chart", c.serveChart)
	return mux
}

func (c *Controller) serveState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.State()); err != nil {
		c.log.Error("failed to encode state: %v", err)
	}
}

func (c *Controller) serveCommand(w http.ResponseWriter, r *http.Request) {
	var cmd events.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid command: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !knownCommand(cmd.Name) {
		http.Error(w, "unknown command "+cmd.Name, http.StatusBadRequest)
		return
	}
	if err := c.Submit(cmd); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (c *Controller) serveWebSockets() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			c.log.Debug("checking origin: %s", origin)
			if origin == "" {
				return true
			}
			if strings.Contains(origin, "localhost") {
				return true
			}
			return strings.Contains(origin, r.Host)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			c.log.Error("failed to upgrade websocket: %v", err)
			return
		}
		defer func() {
			c.clients.remove(ws)
			ws.Close()
		}()

		if err := c.clients.join(ws, c.State()); err != nil {
			c.log.Error("failed initial ws write: %v", err)
			return
		}

		for {
			var cmd events.Command
			if err := ws.ReadJSON(&cmd); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Error("failed ws ReadJSON: %v", err)
				}
				return
			}
			if !knownCommand(cmd.Name) {
				c.log.Debug("dropping unknown client command %q", cmd.Name)
				continue
			}
			if err := c.Submit(cmd); err != nil {
				c.log.Debug("dropping client command %q: %v", cmd.Name, err)
			}
		}
	}
}

func (c *Controller) broadcast(st events.LoopState) {
	data, err := json.Marshal(st)
	if err != nil {
		c.log.Error("failed to marshal broadcast: %v", err)
		return
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		c.log.Error("failed to prepare message: %v", err)
		return
	}
	c.clients.broadcast(pm, c.log)
}

func knownCommand(name string) bool {
	switch name {
	case events.CmdSetPoint, events.CmdReset, events.CmdAutotuneStart,
		events.CmdAutotuneStop, events.CmdEnable, events.CmdDisable:
		return true
	}
	return false
}
