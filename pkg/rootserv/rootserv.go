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

package rootserv

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"pidctl/pkg/logger"
	"sort"
	"strings"
	"sync"
	"time"
)

const shutdownTimeout = 5 * time.Second

// RootServer holds a mux and the list of attached sub-handlers.
type RootServer struct {
	log  *logger.Logger
	addr string
	mux  *http.ServeMux

	mu         sync.RWMutex
	subservers map[string]string // path -> description
}

// New creates a new RootServer bound to an address.
func New(addr string) *RootServer {
	ms := &RootServer{
		addr:       addr,
		mux:        http.NewServeMux(),
		subservers: make(map[string]string),
		log:        logger.New("HTTPServer"),
	}
	ms.mux.HandleFunc("/index", ms.handleIndex)
	ms.mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/index", http.StatusTemporaryRedirect)
	})
	return ms
}

// Attach registers handler under path; the handler sees paths with the prefix stripped.
func (ms *RootServer) Attach(path, desc string, handler http.Handler) {
	path = "/" + strings.Trim(path, "/")
	ms.log.Info("Attach: %s", path)

	ms.mu.Lock()
	ms.subservers[path] = desc
	ms.mu.Unlock()

	ms.mux.Handle(path+"/", http.StripPrefix(path, handler))
	ms.mux.Handle(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently))
}

// Handler exposes the mux, mainly for tests.
func (ms *RootServer) Handler() http.Handler {
	return ms.mux
}

// handleIndex generates the HTML index page listing all subservers.
func (ms *RootServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	ms.mu.RLock()
	paths := make([]string, 0, len(ms.subservers))
	for path := range ms.subservers {
		paths = append(paths, path)
	}
	descs := make(map[string]string, len(ms.subservers))
	for k, v := range ms.subservers {
		descs[k] = v
	}
	ms.mu.RUnlock()
	sort.Strings(paths)

	fmt.Fprintln(w, "<!DOCTYPE html><html><head><title>pidctl</title></head><body>")
	fmt.Fprintln(w, "<h1>pidctl</h1><ul>")
	for _, path := range paths {
		fmt.Fprintf(w, "<li><a href=\"%s/\">%s</a> - %s</li>\n",
			html.EscapeString(path), html.EscapeString(path), html.EscapeString(descs[path]))
	}
	fmt.Fprintln(w, "</ul></body></html>")
}

// Run starts serving and blocks until the context is canceled.
func (ms *RootServer) Run(ctx context.Context) {
	ms.log.Info("Listening on %s", ms.addr)

	srv := &http.Server{
		Addr:              ms.addr,
		Handler:           ms.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			ms.log.Error("shutdown: %v", err)
		}
		ms.log.Info("Stopped")
	case err, ok := <-errCh:
		if ok {
			ms.log.Error("Stopped: %v", err)
		}
	}
}
