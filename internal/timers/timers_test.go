package timers

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/liuxd6825/portalshell/internal/eventloop"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testTimers struct {
	t      *testing.T
	loop   *eventloop.EventLoop
	clock  *clock.Mock
	timers *Timers

	mu    sync.Mutex
	fired []string
}

func newTestTimers(t *testing.T) *testTimers {
	t.Helper()

	loop := eventloop.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mock := clock.NewMock()
	tt := &testTimers{
		t:      t,
		loop:   loop,
		clock:  mock,
		timers: New(loop.RegisterCallback, mock, logger),
	}
	t.Cleanup(func() {
		tt.do(func() { tt.timers.Stop() })
		cancel()
		<-loop.Done()
	})
	return tt
}

// do runs f on the event loop, where the timers must be used.
func (tt *testTimers) do(f func()) {
	tt.t.Helper()
	require.NoError(tt.t, tt.loop.Do(context.Background(), func() error {
		f()
		return nil
	}))
}

func (tt *testTimers) record(name string) func() {
	return func() {
		tt.mu.Lock()
		defer tt.mu.Unlock()
		tt.fired = append(tt.fired, name)
	}
}

func (tt *testTimers) firedNames() []string {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return append([]string(nil), tt.fired...)
}

func (tt *testTimers) waitFired(n int) {
	tt.t.Helper()
	require.Eventually(tt.t, func() bool {
		return len(tt.firedNames()) >= n
	}, time.Second, time.Millisecond)
	// let the loop finish the callback that fired so the next timer is armed
	tt.do(func() {})
}

func TestSetTimeoutOrder(t *testing.T) {
	t.Parallel()
	tt := newTestTimers(t)

	tt.do(func() {
		tt.timers.SetTimeout("late", 300*time.Millisecond, tt.record("late"))
		tt.timers.SetTimeout("early", 100*time.Millisecond, tt.record("early"))
		tt.timers.SetTimeout("middle", 200*time.Millisecond, tt.record("middle"))
	})

	tt.clock.Add(100 * time.Millisecond)
	tt.waitFired(1)
	tt.clock.Add(100 * time.Millisecond)
	tt.waitFired(2)
	tt.clock.Add(100 * time.Millisecond)
	tt.waitFired(3)

	assert.Equal(t, []string{"early", "middle", "late"}, tt.firedNames())
	tt.do(func() { assert.Equal(t, 0, tt.timers.Len()) })
}

func TestClearTimeout(t *testing.T) {
	t.Parallel()
	tt := newTestTimers(t)

	var first, second uint64
	tt.do(func() {
		first = tt.timers.SetTimeout("first", 100*time.Millisecond, tt.record("first"))
		second = tt.timers.SetTimeout("second", 200*time.Millisecond, tt.record("second"))
		tt.timers.Clear(first)
		assert.False(t, tt.timers.Active(first))
		assert.True(t, tt.timers.Active(second))
	})

	tt.clock.Add(100 * time.Millisecond)
	tt.do(func() {})
	assert.Empty(t, tt.firedNames())

	tt.clock.Add(100 * time.Millisecond)
	tt.waitFired(1)
	assert.Equal(t, []string{"second"}, tt.firedNames())
	tt.do(func() {
		assert.False(t, tt.timers.Active(second))
		tt.timers.Clear(second) // no-op
		tt.timers.Clear(0)
	})
}

func TestSetInterval(t *testing.T) {
	t.Parallel()
	tt := newTestTimers(t)

	var id uint64
	count := 0
	tt.do(func() {
		id = tt.timers.SetInterval("poll", 200*time.Millisecond, func() {
			count++
			tt.record("poll")()
			if count == 3 {
				tt.timers.Clear(id)
			}
		})
	})

	for i := 1; i <= 3; i++ {
		tt.clock.Add(200 * time.Millisecond)
		tt.waitFired(i)
	}
	tt.do(func() { assert.False(t, tt.timers.Active(id)) })

	tt.clock.Add(time.Second)
	tt.do(func() {})
	assert.Len(t, tt.firedNames(), 3)
}

func TestStop(t *testing.T) {
	t.Parallel()
	tt := newTestTimers(t)

	tt.do(func() {
		tt.timers.SetTimeout("a", 100*time.Millisecond, tt.record("a"))
		tt.timers.SetInterval("b", 100*time.Millisecond, tt.record("b"))
		tt.timers.Stop()
		assert.Equal(t, 0, tt.timers.Len())
	})

	tt.clock.Add(time.Second)
	tt.do(func() {})
	assert.Empty(t, tt.firedNames())
}
