package shell

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/liuxd6825/portalshell/event"
	"github.com/liuxd6825/portalshell/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testLocation = "https://shell.example/?world=lobby"

type hostCall struct {
	cmd  string
	args []interface{}
}

// fakeHost records every host command.
type fakeHost struct {
	mu    sync.Mutex
	calls []hostCall
}

func (h *fakeHost) record(cmd string, args ...interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hostCall{cmd: cmd, args: args})
	return nil
}

func (h *fakeHost) MountFrame(f MountFrame) error { return h.record(HostCmdMountFrame, f) }
func (h *fakeHost) UnmountFrame(id string) error  { return h.record(HostCmdUnmountFrame, id) }
func (h *fakeHost) NavigateFrame(id, src string) error {
	return h.record(HostCmdNavigateFrame, id, src)
}
func (h *fakeHost) ArrangeFrames(p []Placement) error { return h.record(HostCmdArrangeFrames, p) }
func (h *fakeHost) HideFrame(id string) error         { return h.record(HostCmdHideFrame, id) }
func (h *fakeHost) FocusFrame(id string) error        { return h.record(HostCmdFocusFrame, id) }
func (h *fakeHost) SetTitle(title string) error       { return h.record(HostCmdSetTitle, title) }
func (h *fakeHost) PushState(s HistoryState, url string) error {
	return h.record(HostCmdPushState, s, url)
}
func (h *fakeHost) ReplaceState(s HistoryState, url string) error {
	return h.record(HostCmdReplaceState, s, url)
}
func (h *fakeHost) Reload() error             { return h.record(HostCmdReload) }
func (h *fakeHost) Redirect(url string) error { return h.record(HostCmdRedirect, url) }

// take returns and forgets the recorded calls.
func (h *fakeHost) take() []hostCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	calls := h.calls
	h.calls = nil
	return calls
}

func (h *fakeHost) find(calls []hostCall, cmd string) []hostCall {
	var out []hostCall
	for _, c := range calls {
		if c.cmd == cmd {
			out = append(out, c)
		}
	}
	return out
}

type harness struct {
	t      *testing.T
	c      *Coordinator
	host   *fakeHost
	clock  *clock.Mock
	events *event.System
	logs   *test.Hook
	codec  transport.Codec
}

func newHarness(t *testing.T, configure ...func(*Options)) *harness {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	var n int
	h := &harness{
		t:      t,
		host:   &fakeHost{},
		clock:  clock.NewMock(),
		events: event.NewEventSystem(16, logger),
		logs:   hook,
		codec:  transport.NewCodec(""),
	}
	opts := Options{
		ID:       "shell-1",
		Location: testLocation,
		Host:     h.host,
		Logger:   logger,
		Clock:    h.clock,
		Events:   h.events,
		NewPortalID: func() (string, error) {
			n++
			return fmt.Sprintf("p%d", n), nil
		},
	}
	for _, f := range configure {
		f(&opts)
	}

	c, err := New(opts)
	require.NoError(t, err)
	h.c = c
	t.Cleanup(c.Dispose)
	return h
}

// start starts the shell and connects and confirms its primary frame p1.
func (h *harness) start() *transport.Pipe {
	h.t.Helper()
	require.NoError(h.t, h.c.Start(context.Background()))
	p1 := h.connect("p1")
	h.expect(p1, CmdFrameType)
	h.deliver(p1, CmdFrameTypeReceived, FrameTypeReceived{FrameType: Primary})
	h.host.take()
	return p1
}

func (h *harness) connect(portalID string) *transport.Pipe {
	h.t.Helper()
	p := transport.NewPipe(portalID+"-conn", h.codec, 64)
	require.NoError(h.t, h.c.Attach(context.Background(), portalID, p))
	return p
}

// deliver sends a message from the frame connected through p and waits until
// the shell handled it.
func (h *harness) deliver(p transport.Endpoint, cmd string, payload interface{}) {
	h.t.Helper()
	buf, err := h.codec.Encode(cmd, payload)
	require.NoError(h.t, err)
	env, ok, err := h.codec.Decode(buf)
	require.NoError(h.t, err)
	require.True(h.t, ok)
	h.c.Deliver(p, env)
	h.sync()
}

// sync waits until everything queued on the shell's loop so far has run.
func (h *harness) sync() Snapshot {
	h.t.Helper()
	s, err := h.c.Snapshot(context.Background())
	require.NoError(h.t, err)
	return s
}

// advance moves the clock and waits for the timers that fired to run.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Add(d)
	time.Sleep(10 * time.Millisecond)
	h.sync()
}

// expect skips messages until it finds cmd.
func (h *harness) expect(p *transport.Pipe, cmd string) transport.Envelope {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		env, err := p.Recv(ctx)
		require.NoError(h.t, err, "waiting for %s on %s", cmd, p.ID())
		if env.Command == cmd {
			return env
		}
	}
}

// commands drains p and returns the commands it had received.
func (h *harness) commands(p *transport.Pipe) []string {
	var out []string
	for _, env := range p.Drain() {
		out = append(out, env.Command)
	}
	return out
}

func (h *harness) logged(msg string) bool {
	for _, e := range h.logs.AllEntries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func (h *harness) nextEvent(ch <-chan *event.Event) *event.Event {
	h.t.Helper()
	select {
	case e := <-ch:
		e.Done()
		return e
	case <-time.After(2 * time.Second):
		h.t.Fatal("no event")
		return nil
	}
}
