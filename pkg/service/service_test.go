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

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitExit(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case code := <-ch:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("services did not stop")
		return 0
	}
}

func TestStart_CleanShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ran := make(chan struct{}, 2)
	svc := RunFunc(func(ctx context.Context) {
		ran <- struct{}{}
		<-ctx.Done()
	})

	exitCh := Start(ctx, cancel, []Runnable{svc, svc})
	<-ran
	<-ran
	cancel()

	assert.Equal(t, 0, waitExit(t, exitCh))
}

func TestStart_PanicCancelsOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	waiter := RunFunc(func(ctx context.Context) { <-ctx.Done() })
	crasher := RunFunc(func(ctx context.Context) { panic("loop exploded") })

	exitCh := Start(ctx, cancel, []Runnable{waiter, crasher})
	assert.Equal(t, -1, waitExit(t, exitCh))
	assert.Error(t, ctx.Err())
}
