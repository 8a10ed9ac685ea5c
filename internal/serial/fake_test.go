package serial

import (
	"errors"
	"io"
	"sync"

	"go.bug.st/serial"
)

// fakePort is an in-memory peripheral. Writes are recorded; reads are fed
// through a pipe so the line reader blocks like it would on a device.
type fakePort struct {
	mu       sync.Mutex
	writes   []string
	writeErr error
	closeErr error
	closed   bool

	r *io.PipeReader
	w *io.PipeWriter
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, w: w}
}

func (f *fakePort) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes = append(f.writes, string(p))
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	f.closed = true
	err := f.closeErr
	f.mu.Unlock()
	f.r.CloseWithError(errors.New("port closed"))
	return err
}

func (f *fakePort) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakePort) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// send delivers bytes from the device side.
func (f *fakePort) send(s string) {
	f.w.Write([]byte(s))
}

func openerFor(p *fakePort, gotMode **serial.Mode) Opener {
	return func(name string, mode *serial.Mode) (Port, error) {
		if gotMode != nil {
			*gotMode = mode
		}
		return p, nil
	}
}
