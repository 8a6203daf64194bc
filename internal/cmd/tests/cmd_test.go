package tests

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/portalshell/errext/exitcodes"
	"github.com/liuxd6825/portalshell/internal/cmd"
)

func TestRootCommand(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"Just root": {"portalshell"},
		"Help flag": {"portalshell", "--help"},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ts := NewGlobalTestState(t)
			ts.CmdArgs = args
			cmd.ExecuteWithGlobalState(ts.GlobalState)
			assert.Empty(t, ts.LoggerHook.AllEntries())
			assert.Contains(t, ts.Stdout.String(), "Usage:\n  portalshell [command]")
			assert.Contains(t, ts.Stdout.String(), "serve")
		})
	}
}

func TestVersionJSON(t *testing.T) {
	t.Parallel()

	ts := NewGlobalTestState(t)
	ts.CmdArgs = []string{"portalshell", "version", "--json"}
	cmd.ExecuteWithGlobalState(ts.GlobalState)

	var details map[string]string
	require.NoError(t, json.Unmarshal(ts.Stdout.Bytes(), &details))
	assert.NotEmpty(t, details["version"])
	assert.NotEmpty(t, details["go_version"])
}

func TestURLCommands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		args     []string
		expected string
	}{
		{
			args:     []string{"frame", "?world=default&q=hi&b=2&a=1", "--portal-id", "p1"},
			expected: "https://shell.example/?a=1&b=2&q=hi&portal=p1",
		},
		{
			args:     []string{"portal", "https://other.example/worlds/?world=w2&z=1&portal=p2"},
			expected: "https://other.example/worlds/?world=w2&z=1",
		},
		{
			args:     []string{"shell", "https://other.example/worlds/?world=w1#anchor=a"},
			expected: "https://shell.example/?world=w1&canonical=https%3A%2F%2Fother.example%2Fworlds%2F#anchor=a",
		},
		{
			args:     []string{"canonical", "https://shell.example/?world=w1&canonical=https%3A%2F%2Fother.example%2Fworlds%2F"},
			expected: "https://other.example/worlds/?world=w1",
		},
		{
			args:     []string{"title", "https://other.example/w/"},
			expected: "other.example/w/",
		},
		{
			args:     []string{"match", "https://shell.example/?world=w1&portal=abc", "?world=w1"},
			expected: "true",
		},
		{
			args:     []string{"match", "https://shell.example/?world=w1&portal=abc", "?world=w2"},
			expected: "false",
		},
	}

	for _, tc := range cases {
		t.Run(tc.args[0], func(t *testing.T) {
			t.Parallel()
			ts := NewGlobalTestState(t)
			ts.CmdArgs = append([]string{"portalshell", "url", "--location", "https://shell.example/"}, tc.args...)
			cmd.ExecuteWithGlobalState(ts.GlobalState)
			assert.Equal(t, tc.expected+"\n", ts.Stdout.String())
		})
	}
}

func TestURLInvalidLocation(t *testing.T) {
	t.Parallel()

	ts := NewGlobalTestState(t)
	ts.CmdArgs = []string{"portalshell", "url", "title", "--location", "shell.example", "/x"}
	ts.ExpectedExitCode = int(exitcodes.InvalidConfig)
	cmd.ExecuteWithGlobalState(ts.GlobalState)

	assert.Contains(t, strings.Join(ts.Entries(), "\n"), "must be an absolute URL")
}

func TestURLArgs(t *testing.T) {
	t.Parallel()

	ts := NewGlobalTestState(t)
	ts.CmdArgs = []string{"portalshell", "url", "match", "https://shell.example/"}
	ts.ExpectedExitCode = -1
	cmd.ExecuteWithGlobalState(ts.GlobalState)

	assert.Contains(t, strings.Join(ts.Entries(), "\n"), "accepts 2 arg(s), received 1")
}

func TestServeInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		args []string
		env  map[string]string
		msg  string
	}{
		"flag": {
			args: []string{"--frame-cap", "1"},
			msg:  "frameCap must be at least 2",
		},
		"env": {
			env: map[string]string{"PORTALSHELL_RENDER_TIMEOUT": "-5s"},
			msg: "renderTimeout must be positive",
		},
		"missing config file": {
			args: []string{"--config", "/missing.json"},
			msg:  "reading config file",
		},
		"command log filter": {
			args: []string{"--command-log", "ws:("},
			msg:  "error parsing regexp",
		},
		"traces output": {
			args: []string{"--traces-output", "jaeger"},
			msg:  "invalid traces output",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ts := NewGlobalTestState(t)
			ts.CmdArgs = append([]string{"portalshell", "serve", "--log-output", "none"}, tc.args...)
			for k, v := range tc.env {
				ts.Env[k] = v
			}
			ts.ExpectedExitCode = int(exitcodes.InvalidConfig)
			cmd.ExecuteWithGlobalState(ts.GlobalState)

			assert.Contains(t, strings.Join(ts.Entries(), "\n"), tc.msg)
		})
	}
}

func TestServe(t *testing.T) {
	t.Parallel()

	ts := NewGlobalTestState(t)
	ts.CmdArgs = []string{"portalshell", "serve", "-a", "127.0.0.1:0", "--log-output", "none"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		cmd.ExecuteWithGlobalState(ts.GlobalState)
	}()

	var addr string
	require.Eventually(t, func() bool {
		for _, msg := range ts.Entries() {
			if a, ok := strings.CutPrefix(msg, "listening on "); ok {
				addr = a
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/ping") //nolint:noctx
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	ts.Cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestLogOutputFile(t *testing.T) {
	t.Parallel()

	ts := NewGlobalTestState(t)
	ts.CmdArgs = []string{"portalshell", "-v", "--log-output", "file=shell.log", "url", "title", "https://x.example/"}
	cmd.ExecuteWithGlobalState(ts.GlobalState)

	assert.Equal(t, "x.example/\n", ts.Stdout.String())
	data, err := afero.ReadFile(ts.FS, "/test/shell.log")
	require.NoError(t, err)
	assert.Contains(t, string(data), "portalshell version: v")
	assert.Empty(t, ts.Stderr.String())
}

func TestUnsupportedLogOutput(t *testing.T) {
	t.Parallel()

	ts := NewGlobalTestState(t)
	ts.CmdArgs = []string{"portalshell", "--log-output", "loki", "url", "title", "https://x.example/"}
	ts.ExpectedExitCode = -1
	cmd.ExecuteWithGlobalState(ts.GlobalState)

	assert.Contains(t, ts.Entries(), "unsupported log output 'loki'")
}
