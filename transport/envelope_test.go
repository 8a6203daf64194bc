package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	codec := NewCodec("")
	tests := []struct {
		name     string
		payload  interface{}
		expected string
	}{
		{"nil payload", nil, `{"message":"croquet:microverse:release-freeze"}`},
		{"empty object", struct{}{}, `{"message":"croquet:microverse:release-freeze"}`},
		{"flattened", map[string]interface{}{"frameType": "primary"}, `{"message":"croquet:microverse:release-freeze","frameType":"primary"}`},
		{"struct", struct {
			DX float64 `json:"dx"`
			DY float64 `json:"dy"`
		}{1, -2}, `{"message":"croquet:microverse:release-freeze","dx":1,"dy":-2}`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf, err := codec.Encode("release-freeze", tc.payload)
			require.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(buf))
		})
	}

	_, err := codec.Encode("x", []int{1})
	require.ErrorIs(t, err, ErrInvalidMessage)
	_, err = codec.Encode("x", map[string]string{"message": "spoof"})
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	codec := NewCodec("")
	env, ok, err := codec.Decode([]byte(`{"message":"croquet:microverse:portal-update","portalSpecs":{"p1":{"cameraMatrix":[1,2]}}}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "portal-update", env.Command)
	assert.Equal(t, 2.0, env.Get("portalSpecs.p1.cameraMatrix.1").Float())

	var payload struct {
		PortalSpecs map[string]struct {
			CameraMatrix []float64 `json:"cameraMatrix"`
		} `json:"portalSpecs"`
	}
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, []float64{1, 2}, payload.PortalSpecs["p1"].CameraMatrix)

	for _, ignored := range []string{
		`{"message":"other:portal-update"}`,
		`{"message":42}`,
		`{"portalSpecs":{}}`,
		`{"message":"croquet:microverse:"}`,
	} {
		_, ok, err = codec.Decode([]byte(ignored))
		require.NoError(t, err, ignored)
		assert.False(t, ok, ignored)
	}

	for _, invalid := range []string{`not json`, `[1,2]`, `"croquet:microverse:x"`} {
		_, _, err = codec.Decode([]byte(invalid))
		require.ErrorIs(t, err, ErrInvalidMessage, invalid)
	}
}

func TestSubCodec(t *testing.T) {
	t.Parallel()

	host := NewCodec("").Sub("host:")
	buf, err := host.Encode("hello", map[string]string{"location": "https://shell.example/"})
	require.NoError(t, err)

	env, ok, err := host.Decode(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", env.Command)
	assert.Equal(t, "https://shell.example/", env.Get("location").String())

	frame := NewCodec("")
	env, ok, err = frame.Decode(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "host:hello", env.Command)
}

func TestPipe(t *testing.T) {
	t.Parallel()

	p := NewPipe("frame-1", NewCodec(""), 2)
	assert.Equal(t, "frame-1", p.ID())

	require.NoError(t, p.Send("frame-type", map[string]string{"frameType": "secondary"}))
	require.NoError(t, p.Send("release-freeze", nil))
	require.ErrorIs(t, p.Send("release-freeze", nil), ErrSendBufferFull)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, err := p.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "frame-type", env.Command)
	assert.Equal(t, "secondary", env.Get("frameType").String())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	<-p.Done()
	require.ErrorIs(t, p.Send("release-freeze", nil), ErrClosed)

	rest := p.Drain()
	require.Len(t, rest, 1)
	assert.Equal(t, "release-freeze", rest[0].Command)
}
