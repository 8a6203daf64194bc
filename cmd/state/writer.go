package state

import (
	"io"
	"sync"
)

// Writer is an output stream shared between the logger and the commands.
type Writer struct {
	Mutex  *sync.Mutex
	Writer io.Writer
	IsTTY  bool
}

// Write writes p while holding the shared output lock.
func (w *Writer) Write(p []byte) (int, error) {
	w.Mutex.Lock()
	defer w.Mutex.Unlock()
	return w.Writer.Write(p)
}
