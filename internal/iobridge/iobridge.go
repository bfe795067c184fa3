// Package iobridge carries stdin bytes and terminal geometry between the
// host process and the guest, and the suspend/resume protocol a blocking
// read on fd 0 needs: the guest-side read must never block the host
// thread, so an empty, non-EOF read asks its caller to stop the Machine and
// retry later instead of parking a goroutine.
package iobridge

import (
	"sync"
	"sync/atomic"
)

// Bridge is the single shared piece of state between the host's stdin
// reader and the guest syscall handler for fd 0.
type Bridge struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  []byte

	eof       atomic.Bool
	rows      atomic.Int32
	cols      atomic.Int32
	waiting   atomic.Bool
	running   atomic.Bool
}

// New creates an empty, running Bridge.
func New() *Bridge {
	b := &Bridge{}
	b.cond = sync.NewCond(&b.mu)
	b.running.Store(true)
	return b
}

// Push appends bytes from the host and wakes any waiter. Called only from
// the host thread.
func (b *Bridge) Push(data []byte) {
	b.mu.Lock()
	b.buf = append(b.buf, data...)
	b.mu.Unlock()
	b.cond.Broadcast()
}

// SetTermSize updates the terminal geometry atomics.
func (b *Bridge) SetTermSize(rows, cols int32) {
	b.rows.Store(rows)
	b.cols.Store(cols)
}

// TermSize returns the current terminal geometry.
func (b *Bridge) TermSize() (rows, cols int32) {
	return b.rows.Load(), b.cols.Load()
}

// SetEOF marks stdin as permanently closed and wakes any waiter so it can
// observe the EOF instead of blocking forever.
func (b *Bridge) SetEOF() {
	b.eof.Store(true)
	b.cond.Broadcast()
}

// Reset clears buffered bytes, EOF state and the waiting flag for a fresh
// session.
func (b *Bridge) Reset() {
	b.mu.Lock()
	b.buf = nil
	b.mu.Unlock()
	b.eof.Store(false)
	b.waiting.Store(false)
}

// TryRead copies up to len(buf) buffered bytes into buf. Returns n>=0 on
// success (0 meaning EOF with nothing left), or -1 if the buffer is empty
// and EOF has not been signaled — the caller (the syscall handler) must
// treat -1 as "rewind PC and stop the Machine", never block here.
func (b *Bridge) TryRead(buf []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) == 0 {
		if b.eof.Load() {
			return 0
		}
		return -1
	}
	n := copy(buf, b.buf)
	b.buf = b.buf[n:]
	return n
}

// HasData reports whether a read would return data or EOF without
// blocking — used to answer poll/epoll readiness for fd 0.
func (b *Bridge) HasData() bool {
	b.mu.Lock()
	n := len(b.buf)
	b.mu.Unlock()
	return n > 0 || b.eof.Load()
}

// SetWaiting records whether the guest syscall handler is currently
// suspended waiting for stdin, so the host driver loop knows to call
// Machine.Resume() once new bytes or EOF arrive.
func (b *Bridge) SetWaiting(v bool) { b.waiting.Store(v) }
func (b *Bridge) Waiting() bool     { return b.waiting.Load() }

func (b *Bridge) SetRunning(v bool) { b.running.Store(v) }
func (b *Bridge) Running() bool     { return b.running.Load() }
