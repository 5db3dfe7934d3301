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

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
)

type Logger struct {
	prefix string
}

var (
	output       atomic.Pointer[log.Logger]
	logFile      *os.File
	fileMu       sync.Mutex
	debugEnabled atomic.Bool
)

func init() {
	output.Store(log.New(os.Stdout, "", log.LstdFlags))
	if os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
}

// Init tees all loggers to stdout and the file at logPath.
// Calling Init again replaces the previous log file.
func Init(logPath string) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	fileMu.Lock()
	old := logFile
	logFile = f
	fileMu.Unlock()

	SetOutput(io.MultiWriter(os.Stdout, f))
	if old != nil {
		old.Close()
	}
	return nil
}

// SetOutput redirects every logger to w.
func SetOutput(w io.Writer) {
	output.Store(log.New(w, "", log.LstdFlags))
}

// Close cleans up the log file (call on shutdown)
func Close() {
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	SetOutput(os.Stdout)
}

// LogPath returns the path of the active log file, or "" when logging to stdout only.
func LogPath() string {
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// EnableDebug dynamically turns debug logging on/off
func EnableDebug(on bool) {
	debugEnabled.Store(on)
}

// IsDebug returns current debug state
func IsDebug() bool {
	return debugEnabled.Load()
}

func New(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

// Sub returns a logger whose prefix is nested under l's.
func (l *Logger) Sub(name string) *Logger {
	return &Logger{prefix: l.prefix + "/" + name}
}

func (l *Logger) printf(level, fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	output.Load().Printf("[%s] %s: %v", l.prefix, level, formatted)
}

func (l *Logger) printfCaller(level, fmtstr string, v ...any) string {
	formatted := fmt.Sprintf(fmtstr, v...)
	_, file, line, ok := runtime.Caller(2)
	if ok {
		output.Load().Printf("[%s] %s: (%s:%d) %s", l.prefix, level, filepath.Base(file), line, formatted)
	} else {
		output.Load().Printf("[%s] %s: %v", l.prefix, level, formatted)
	}
	return formatted
}

func (l *Logger) Info(fmtstr string, v ...any) {
	l.printf("INFO", fmtstr, v...)
}

func (l *Logger) Warn(fmtstr string, v ...any) {
	l.printf("WARN", fmtstr, v...)
}

func (l *Logger) Error(fmtstr string, v ...any) {
	l.printfCaller("ERROR", fmtstr, v...)
}

// Fatal logs and panics; service.Start recovers and shuts the process down.
func (l *Logger) Fatal(fmtstr string, v ...any) {
	panic(l.printfCaller("FATAL", fmtstr, v...))
}

func (l *Logger) Debug(fmtstr string, v ...any) {
	if !debugEnabled.Load() {
		return
	}
	l.printf("DEBUG", fmtstr, v...)
}
