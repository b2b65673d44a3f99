// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = time.Second
const tick = 2 * time.Millisecond

func newMock(t *testing.T, delay time.Duration) (*Debouncer, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	d := New(delay, WithClock(mock))
	t.Cleanup(d.Stop)
	return d, mock
}

func TestDebouncer_DefaultDelay(t *testing.T) {
	d := New(0)
	defer d.Stop()
	assert.Equal(t, DefaultDelay, d.Delay())
}

func TestDebouncer_CollapsesBurst(t *testing.T) {
	d, mock := newMock(t, time.Second)

	var mu sync.Mutex
	var got []int
	for i := 1; i <= 5; i++ {
		i := i
		d.Trigger("field-1", func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
		mock.Add(300 * time.Millisecond)
	}

	// 300ms since the last event: nothing yet.
	mu.Lock()
	assert.Empty(t, got)
	mu.Unlock()
	assert.True(t, d.Pending("field-1"))

	mock.Add(700 * time.Millisecond)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, waitFor, tick)

	mu.Lock()
	assert.Equal(t, []int{5}, got, "only the latest callback runs")
	mu.Unlock()
	assert.False(t, d.Pending("field-1"))
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	d, mock := newMock(t, time.Second)

	var a, b atomic.Int32
	d.Trigger("a", func() { a.Add(1) })
	mock.Add(600 * time.Millisecond)
	d.Trigger("b", func() { b.Add(1) })
	mock.Add(400 * time.Millisecond)

	// "a" has been quiet for a full second, "b" for 400ms.
	assert.Eventually(t, func() bool { return a.Load() == 1 }, waitFor, tick)
	assert.Equal(t, int32(0), b.Load())
	assert.Equal(t, 1, d.Len())

	mock.Add(600 * time.Millisecond)
	assert.Eventually(t, func() bool { return b.Load() == 1 }, waitFor, tick)
}

func TestDebouncer_Cancel(t *testing.T) {
	d, mock := newMock(t, time.Second)

	var n atomic.Int32
	d.Trigger("k", func() { n.Add(1) })
	assert.True(t, d.Cancel("k"))
	assert.False(t, d.Cancel("k"))

	mock.Add(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())
}

func TestDebouncer_Flush(t *testing.T) {
	d, mock := newMock(t, time.Second)

	var n atomic.Int32
	d.Trigger("k", func() { n.Add(1) })
	assert.True(t, d.Flush("k"))
	assert.Equal(t, int32(1), n.Load(), "flush runs synchronously")
	assert.False(t, d.Flush("k"))

	mock.Add(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load(), "flushed timer must not fire again")
}

func TestDebouncer_SetDelay(t *testing.T) {
	d, mock := newMock(t, time.Second)
	d.SetDelay(200 * time.Millisecond)
	d.SetDelay(-1)
	assert.Equal(t, 200*time.Millisecond, d.Delay())

	var n atomic.Int32
	d.Trigger("k", func() { n.Add(1) })
	mock.Add(200 * time.Millisecond)
	assert.Eventually(t, func() bool { return n.Load() == 1 }, waitFor, tick)
}

func TestDebouncer_StopDropsPendingAndRejectsNew(t *testing.T) {
	mock := clock.NewMock()
	d := New(time.Second, WithClock(mock))

	var n atomic.Int32
	d.Trigger("k", func() { n.Add(1) })
	d.Stop()
	d.Trigger("k", func() { n.Add(1) })

	assert.Equal(t, 0, d.Len())
	mock.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())
}

func TestDebouncer_StopWaitsForRunningCallback(t *testing.T) {
	d := New(time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	var done atomic.Bool
	d.Trigger("k", func() {
		close(started)
		<-release
		done.Store(true)
	})

	<-started
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	d.Stop()
	assert.True(t, done.Load())
}

func TestDebouncer_RealClock(t *testing.T) {
	d := New(20 * time.Millisecond)
	defer d.Stop()

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger("k", func() { n.Add(1) })
	}
	assert.Eventually(t, func() bool { return n.Load() == 1 }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
}
