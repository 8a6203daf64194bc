package portalurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shellLocation = "https://shell.example/"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(shellLocation, "", "")
	require.NoError(t, err)
	return c
}

func TestFrameURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, portalURL, portalID, expected string
	}{
		{
			name:      "relative with default world",
			portalURL: "?world=default&q=hi&b=2&a=1",
			portalID:  "p1",
			expected:  "https://shell.example/?a=1&b=2&q=hi&portal=p1",
		},
		{
			name:      "cross origin index document",
			portalURL: "https://other.example/worlds/index.html?z=1&world=w2",
			portalID:  "p2",
			expected:  "https://other.example/worlds/?world=w2&z=1&portal=p2",
		},
		{
			name:      "empty portal id",
			portalURL: "/",
			expected:  "https://shell.example/?portal=",
		},
		{
			name:      "existing portal replaced",
			portalURL: "?portal=old&world=w1",
			portalID:  "new",
			expected:  "https://shell.example/?world=w1&portal=new",
		},
		{
			name:      "escaped values",
			portalURL: "?q=hello%20world&world=w1",
			portalID:  "p3",
			expected:  "https://shell.example/?world=w1&q=hello+world&portal=p3",
		},
		{
			name:      "duplicate keys keep their order",
			portalURL: "?tag=b&tag=a&world=w1",
			portalID:  "p4",
			expected:  "https://shell.example/?world=w1&tag=b&tag=a&portal=p4",
		},
		{
			name:      "hash is kept",
			portalURL: "?world=w1#anchor=gate",
			portalID:  "p5",
			expected:  "https://shell.example/?world=w1&portal=p5#anchor=gate",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestCodec(t)
			got, err := c.FrameURL(tc.portalURL, tc.portalID)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestPortalURL(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	tests := map[string]string{
		"https://other.example/worlds/?world=w2&z=1&portal=p2": "https://other.example/worlds/?world=w2&z=1",
		"https://shell.example/index.html?portal=p1":           "https://shell.example/",
		"https://shell.example/?world=default&portal=p1":       "https://shell.example/",
		"https://shell.example:443/?b=1&a=2":                   "https://shell.example/?b=1&a=2",
	}
	for frameURL, expected := range tests {
		got, err := c.PortalURL(frameURL)
		require.NoError(t, err)
		assert.Equal(t, expected, got, frameURL)
	}
}

func TestFrameURLRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	for _, portalURL := range []string{
		"?world=w1",
		"https://other.example/index.html?world=default&x=1#a=1",
		"/worlds/?q=1&world=w3&anchor=north",
	} {
		frameURL, err := c.FrameURL(portalURL, "id")
		require.NoError(t, err)
		portal, err := c.PortalURL(frameURL)
		require.NoError(t, err)
		again, err := c.FrameURL(portal, "id")
		require.NoError(t, err)
		assert.Equal(t, frameURL, again, portalURL)

		portalAgain, err := c.PortalURL(again)
		require.NoError(t, err)
		assert.Equal(t, portal, portalAgain, portalURL)
	}
}

func TestShellURLAndCanonical(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	portalURL := "https://other.example/worlds/?world=w1#anchor=a"

	shellURL, err := c.ShellURL(portalURL)
	require.NoError(t, err)
	assert.Equal(t,
		"https://shell.example/?world=w1&canonical=https%3A%2F%2Fother.example%2Fworlds%2F#anchor=a",
		shellURL)
	assert.True(t, c.SameOrigin(shellURL))

	canonical, err := c.Canonical(shellURL)
	require.NoError(t, err)
	assert.Equal(t, portalURL, canonical)

	unchanged := "https://shell.example/?world=w1"
	canonical, err = c.Canonical(unchanged)
	require.NoError(t, err)
	assert.Equal(t, unchanged, canonical)

	_, err = c.Canonical("https://shell.example/?canonical=relative/path")
	require.Error(t, err)
}

func TestTitle(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	assert.Equal(t, "?world=w1", c.Title("https://shell.example/?world=w1"))
	assert.Equal(t, "other.example/w/", c.Title("https://other.example/w/"))
	assert.Equal(t, "shell.example.evil/", c.Title("https://shell.example.evil/"))
}

func TestLocation(t *testing.T) {
	t.Parallel()

	c, err := NewCodec("HTTP://Shell.Example:80", "lobby", "main.html")
	require.NoError(t, err)
	assert.Equal(t, "http://shell.example/", c.Location())
	assert.Equal(t, "http://shell.example", c.Origin())

	got, err := c.FrameURL("/main.html?world=lobby", "p")
	require.NoError(t, err)
	assert.Equal(t, "http://shell.example/?portal=p", got)

	require.Error(t, c.SetLocation("/relative"))
	_, err = NewCodec("not a url", "", "")
	require.Error(t, err)
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		frameSrc  string
		portalURL string
		match     bool
	}{
		{"partial", "https://shell.example/?world=w1&portal=abc", "?world=w1", true},
		{"exact", "https://shell.example/?world=w1&portal=", "?world=w1", true},
		{"other world", "https://shell.example/?world=w1&portal=abc", "?world=w2", false},
		{"other path", "https://shell.example/a/?world=w1&portal=abc", "?world=w1", false},
		{"other origin", "https://other.example/?world=w1&portal=abc", "?world=w1", false},
		{"debug any value", "https://shell.example/?world=w1&debug=1&portal=abc", "?world=w1&debug=yes", true},
		{"extra frame param", "https://shell.example/?world=w1&debug=1&portal=abc", "?world=w1", false},
		{"empty anchor", "https://shell.example/?world=w1&anchor=x&portal=abc", "?world=w1&anchor=", true},
		{"different anchor", "https://shell.example/?world=w1&anchor=x&portal=abc", "?world=w1&anchor=y", false},
		{"explicit portal id", "https://shell.example/?world=w1&portal=abc", "?world=w1&portal=abc", true},
		{"hash as set", "https://shell.example/?world=w1&portal=abc#b=2&a=1", "?world=w1#a=1&b=2", true},
		{"hash differs", "https://shell.example/?world=w1&portal=abc#b=2&a=1", "?world=w1#a=1", false},
		{"default world", "https://shell.example/?portal=abc", "/index.html?world=default", true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestCodec(t)
			assert.Equal(t, tc.match, c.Match(tc.frameSrc, tc.portalURL))
		})
	}
}
