// Package tests runs the portalshell commands end-to-end against a mocked
// global state.
package tests

import (
	"bytes"
	"context"
	"io"
	"os/signal"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/liuxd6825/portalshell/cmd/state"
)

// GlobalTestState is a wrapper around GlobalState for use in tests.
type GlobalTestState struct {
	*state.GlobalState
	Cancel func()

	Stdout, Stderr *bytes.Buffer
	LoggerHook     *test.Hook

	Cwd string

	ExpectedExitCode int
}

// NewGlobalTestState returns an initialized GlobalTestState, mocking all
// GlobalState fields for use in tests.
func NewGlobalTestState(tb testing.TB) *GlobalTestState {
	tb.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	tb.Cleanup(cancel)

	fs := afero.NewMemMapFs()
	cwd := "/test/"
	if err := fs.MkdirAll(cwd, 0o755); err != nil {
		tb.Fatal(err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.Out = io.Discard
	hook := test.NewLocal(logger)

	ts := &GlobalTestState{
		Cwd:        cwd,
		Cancel:     cancel,
		LoggerHook: hook,
		Stdout:     new(bytes.Buffer),
		Stderr:     new(bytes.Buffer),
	}

	var exitMu sync.Mutex
	osExitCalled := false
	defaultOsExitHandle := func(exitCode int) {
		cancel()
		exitMu.Lock()
		osExitCalled = true
		exitMu.Unlock()
		assert.Equal(tb, ts.ExpectedExitCode, exitCode)
	}

	tb.Cleanup(func() {
		if ts.ExpectedExitCode > 0 {
			exitMu.Lock()
			defer exitMu.Unlock()
			// Ensure that, if we expected to receive an error, our `os.Exit()` mock
			// function was actually called.
			assert.Truef(tb, osExitCalled, "did not exit with the expected exit code %d", ts.ExpectedExitCode)
		}
	})

	outMutex := &sync.Mutex{}
	defaultFlags := state.GetDefaultGlobalOptions(".config")

	ts.GlobalState = &state.GlobalState{
		Ctx:          ctx,
		FS:           fs,
		Getwd:        func() (string, error) { return ts.Cwd, nil },
		BinaryName:   "portalshell",
		CmdArgs:      []string{},
		Env:          map[string]string{},
		DefaultFlags: defaultFlags,
		Flags:        defaultFlags,
		OutMutex:     outMutex,
		Stdout:       &state.Writer{Mutex: outMutex, Writer: ts.Stdout, IsTTY: false},
		Stderr:       &state.Writer{Mutex: outMutex, Writer: ts.Stderr, IsTTY: false},
		Stdin:        new(bytes.Buffer),
		OSExit:       defaultOsExitHandle,
		SignalNotify: signal.Notify,
		SignalStop:   signal.Stop,
		Logger:       logger,
		FallbackLogger: func() logrus.FieldLogger {
			l := logrus.New()
			l.Out = io.Discard
			return l.WithField("fallback", true)
		}(),
	}
	return ts
}

// Entries returns the log messages logged so far.
func (ts *GlobalTestState) Entries() []string {
	entries := ts.LoggerHook.AllEntries()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}
