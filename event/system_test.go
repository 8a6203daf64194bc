package event

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSystem(buffer int) *System {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewEventSystem(buffer, logger)
}

func TestEventSystemSubscribeEmit(t *testing.T) {
	t.Parallel()

	es := newTestSystem(10)
	_, opened := es.Subscribe(FrameOpened)
	_, all := es.Subscribe(FrameOpened, FrameClosed)

	es.Emit(&Event{Type: FrameOpened, Data: FrameData{PortalID: "p1"}})
	es.Emit(&Event{Type: FrameClosed, Data: FrameData{PortalID: "p1"}})

	evt := <-opened
	assert.Equal(t, FrameOpened, evt.Type)
	assert.Equal(t, "p1", evt.Data.(FrameData).PortalID)

	assert.Equal(t, FrameOpened, (<-all).Type)
	assert.Equal(t, FrameClosed, (<-all).Type)

	select {
	case evt := <-opened:
		t.Fatalf("unexpected event %v", evt.Type)
	default:
	}
}

func TestEventSystemEmitWait(t *testing.T) {
	t.Parallel()

	es := newTestSystem(10)
	_, ch := es.Subscribe(Activated)

	wait := es.Emit(&Event{Type: Activated})
	go func() {
		(<-ch).Done()
	}()
	require.NoError(t, wait(context.Background()))

	wait = es.Emit(&Event{Type: Activated})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, wait(ctx))

	require.NoError(t, es.Emit(&Event{Type: Disposed})(context.Background()))
}

func TestEventSystemUnsubscribe(t *testing.T) {
	t.Parallel()

	es := newTestSystem(1)
	id, ch := es.Subscribe(FrameOpened, FrameClosed)
	es.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	_, ch2 := es.Subscribe(RenderForced)
	es.UnsubscribeAll()
	_, ok = <-ch2
	assert.False(t, ok)
}

func TestHandle(t *testing.T) {
	t.Parallel()

	es := newTestSystem(10)
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu  sync.Mutex
		ids []string
	)
	done := Handle(ctx, es, func(evt *Event) {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, evt.Data.(FrameData).PortalID)
	}, FrameOpened)

	wait := es.Emit(&Event{Type: FrameOpened, Data: FrameData{PortalID: "a"}})
	require.NoError(t, wait(context.Background()))

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a"}, ids)
}
