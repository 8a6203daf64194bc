// Package log contains the logging helpers of portalshell: a category logger
// for protocol tracing and logrus hooks for additional log outputs.
package log

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// fileHookBufferSize is a default size for the FileHook's loglines channel.
const fileHookBufferSize = 100

// AsyncHook is a logrus hook that does its writing in a separate goroutine
// started with Listen. Listen returns once ctx is done and everything is flushed.
type AsyncHook interface {
	logrus.Hook
	Listen(ctx context.Context)
}

// FileHook is a hook to handle writing to local files.
type FileHook struct {
	fs             afero.Fs
	fallbackLogger logrus.FieldLogger
	loglines       chan []byte
	path           string
	w              io.WriteCloser
	bw             *bufio.Writer
	levels         []logrus.Level
}

var _ AsyncHook = &FileHook{}

// FileHookFromConfigLine returns a new FileHook for a `file=<path>[,level=<level>]` line.
// Relative paths are resolved against the working directory returned by getwd.
func FileHookFromConfigLine(
	fs afero.Fs, getwd func() (string, error), fallbackLogger logrus.FieldLogger, line string,
) (*FileHook, error) {
	hook := &FileHook{
		fs:             fs,
		fallbackLogger: fallbackLogger,
		levels:         logrus.AllLevels,
		loglines:       make(chan []byte, fileHookBufferSize),
	}

	if err := hook.parseArgs(line); err != nil {
		return nil, err
	}

	if !filepath.IsAbs(hook.path) {
		cwd, err := getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get the current working directory: %w", err)
		}
		hook.path = filepath.Join(cwd, hook.path)
	}

	if err := hook.openFile(); err != nil {
		return nil, err
	}

	return hook, nil
}

func (h *FileHook) parseArgs(line string) error {
	for i, token := range strings.Split(line, ",") {
		key, value, _ := strings.Cut(token, "=")
		if i == 0 && key != "file" {
			return fmt.Errorf("logfile configuration should be in the form `file=path-to-local-file` but is `%s`", line)
		}
		switch key {
		case "file":
			if value == "" {
				return fmt.Errorf("filepath must not be empty")
			}
			h.path = value
		case "level":
			var err error
			h.levels, err = parseLevels(value)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown logfile config key %s", key)
		}
	}

	return nil
}

// openFile opens logfile and initializes writers.
func (h *FileHook) openFile() error {
	if _, err := h.fs.Stat(filepath.Dir(h.path)); os.IsNotExist(err) {
		return fmt.Errorf("provided directory '%s' does not exist", filepath.Dir(h.path))
	}

	file, err := h.fs.OpenFile(h.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open logfile %s: %w", h.path, err)
	}

	h.w = file
	h.bw = bufio.NewWriter(file)

	return nil
}

// Listen writes queued log lines until ctx is done, then flushes and closes the file.
func (h *FileHook) Listen(ctx context.Context) {
	for {
		select {
		case entry := <-h.loglines:
			if _, err := h.bw.Write(entry); err != nil {
				h.fallbackLogger.Errorf("failed to write a log message to a logfile: %s", err)
			}
		case <-ctx.Done():
			h.drain()
			if err := h.bw.Flush(); err != nil {
				h.fallbackLogger.Errorf("failed to flush buffer: %s", err)
			}
			if err := h.w.Close(); err != nil {
				h.fallbackLogger.Errorf("failed to close logfile: %s", err)
			}
			return
		}
	}
}

func (h *FileHook) drain() {
	for {
		select {
		case entry := <-h.loglines:
			if _, err := h.bw.Write(entry); err != nil {
				h.fallbackLogger.Errorf("failed to write a log message to a logfile: %s", err)
			}
		default:
			return
		}
	}
}

// Fire queues the formatted entry for writing.
func (h *FileHook) Fire(entry *logrus.Entry) error {
	message, err := entry.Bytes()
	if err != nil {
		return fmt.Errorf("failed to get a log entry bytes: %w", err)
	}

	h.loglines <- message
	return nil
}

// Levels returns configured log levels.
func (h *FileHook) Levels() []logrus.Level {
	return h.levels
}
