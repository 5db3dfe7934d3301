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
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })
	return &buf
}

func TestLogger_PrefixAndLevel(t *testing.T) {
	buf := captureOutput(t)

	New("Loop").Sub("boiler").Info("output=%.1f", 42.0)
	assert.Contains(t, buf.String(), "[Loop/boiler] INFO: output=42.0")
}

func TestLogger_DebugGated(t *testing.T) {
	buf := captureOutput(t)
	EnableDebug(false)
	t.Cleanup(func() { EnableDebug(false) })

	log := New("Test")
	log.Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	EnableDebug(true)
	log.Debug("shown")
	assert.Contains(t, buf.String(), "DEBUG: shown")
}

func TestLogger_ErrorIncludesCaller(t *testing.T) {
	buf := captureOutput(t)
	New("Test").Error("boom")
	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestLogger_FatalPanics(t *testing.T) {
	captureOutput(t)
	assert.PanicsWithValue(t, "bad state 3", func() {
		New("Test").Fatal("bad state %d", 3)
	})
}

func TestWebService_TailAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pidctl.log")
	require.NoError(t, Init(path))
	t.Cleanup(Close)

	New("Web").Info("first line")

	svc := WebService()
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "first line")

	rec = httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clear", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}
