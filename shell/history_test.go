package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/portalshell/portalurl"
	"github.com/liuxd6825/portalshell/transport"
)

func newHistory(t *testing.T) (*SessionHistory, *portalurl.Codec, *fakeHost) {
	t.Helper()
	codec, err := portalurl.NewCodec(testLocation, "", "")
	require.NoError(t, err)
	host := &fakeHost{}
	return NewSessionHistory(codec, host), codec, host
}

func TestSessionHistory(t *testing.T) {
	t.Parallel()
	h, codec, host := newHistory(t)

	require.NoError(t, h.ReplaceState(HistoryState{PortalID: "p1"}, "?world=lobby"))
	require.NoError(t, h.PushState(HistoryState{PortalID: "p2"}, "?world=w2"))
	require.NoError(t, h.PushState(HistoryState{PortalID: "p3"}, "/?world=w3"))
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, "https://shell.example/?world=w3", h.Location())
	assert.Equal(t, h.Location(), codec.Location())

	calls := host.take()
	require.Len(t, calls, 3)
	assert.Equal(t, []interface{}{HistoryState{PortalID: "p2"}, "https://shell.example/?world=w2"}, calls[1].args)

	// back twice, then a new push drops the forward entry
	require.NoError(t, h.PopState(HistoryState{PortalID: "p1"}, "https://shell.example/?world=lobby"))
	assert.Equal(t, "https://shell.example/?world=lobby", codec.Location())
	require.NoError(t, h.PopState(HistoryState{}, "https://shell.example/?world=w2"))
	require.NoError(t, h.PushState(HistoryState{PortalID: "p4"}, "?world=w4"))
	assert.Equal(t, 3, h.Len())
	assert.Empty(t, host.find(host.take(), HostCmdReload))

	// an entry this history never saw
	require.NoError(t, h.PopState(HistoryState{PortalID: "p9"}, "https://shell.example/?world=w9"))
	assert.Equal(t, 4, h.Len())
	assert.Equal(t, "https://shell.example/?world=w9", h.Location())
}

func TestSessionHistoryCrossOrigin(t *testing.T) {
	t.Parallel()
	h, codec, host := newHistory(t)

	err := h.PushState(HistoryState{PortalID: "p2"}, "https://other.example/w/")
	require.ErrorIs(t, err, ErrCrossOrigin)
	require.ErrorIs(t, h.ReplaceState(HistoryState{}, "http://shell.example/"), ErrCrossOrigin)
	require.ErrorIs(t, h.PopState(HistoryState{}, "https://other.example/"), ErrCrossOrigin)

	assert.Empty(t, host.take())
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, testLocation, codec.Location())
}

func TestEndpointHost(t *testing.T) {
	t.Parallel()
	codec := transport.NewCodec("").Sub("host:")
	p := transport.NewPipe("host", codec, 16)
	host := EndpointHost{Endpoint: p}

	require.NoError(t, host.MountFrame(MountFrame{PortalID: "p1", Src: "https://shell.example/?portal=p1"}))
	require.NoError(t, host.ArrangeFrames([]Placement{{PortalID: "p1"}, {PortalID: "p2", ZIndex: -1, TiltZ: -200}}))
	require.NoError(t, host.PushState(HistoryState{PortalID: "p2"}, "https://shell.example/?world=w2"))
	require.NoError(t, host.Reload())

	ctx := context.Background()
	env, err := p.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, HostCmdMountFrame, env.Command)
	assert.Equal(t, "https://shell.example/?portal=p1", env.Get("src").String())

	env, err = p.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, HostCmdArrangeFrames, env.Command)
	assert.Equal(t, int64(-200), env.Get("frames.1.tiltZ").Int())

	env, err = p.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p2", env.Get("state.portalId").String())
	assert.Equal(t, "https://shell.example/?world=w2", env.Get("url").String())

	env, err = p.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, HostCmdReload, env.Command)

	require.NoError(t, p.Close())
	require.ErrorIs(t, host.SetTitle("closed"), transport.ErrClosed)
}
