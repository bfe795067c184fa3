package iobridge

import "testing"

func TestTryReadEmptyNotEOFReturnsMinusOne(t *testing.T) {
	b := New()
	buf := make([]byte, 8)
	if n := b.TryRead(buf); n != -1 {
		t.Errorf("TryRead(empty, no eof) = %d, want -1", n)
	}
}

func TestTryReadEmptyAfterEOFReturnsZero(t *testing.T) {
	b := New()
	b.SetEOF()
	buf := make([]byte, 8)
	if n := b.TryRead(buf); n != 0 {
		t.Errorf("TryRead(empty, eof) = %d, want 0", n)
	}
}

func TestPushThenTryReadReturnsBytes(t *testing.T) {
	b := New()
	b.Push([]byte("hello"))
	buf := make([]byte, 3)
	n := b.TryRead(buf)
	if n != 3 || string(buf) != "hel" {
		t.Fatalf("TryRead = %d, %q, want 3, hel", n, buf)
	}
	buf2 := make([]byte, 8)
	n = b.TryRead(buf2)
	if n != 2 || string(buf2[:n]) != "lo" {
		t.Errorf("second TryRead = %d, %q, want 2, lo", n, buf2[:n])
	}
}

func TestHasDataReflectsBufferAndEOF(t *testing.T) {
	b := New()
	if b.HasData() {
		t.Errorf("HasData() on empty, no-eof bridge = true, want false")
	}
	b.Push([]byte("x"))
	if !b.HasData() {
		t.Errorf("HasData() after push = false, want true")
	}
	buf := make([]byte, 1)
	b.TryRead(buf)
	if b.HasData() {
		t.Errorf("HasData() after draining buffer = true, want false")
	}
	b.SetEOF()
	if !b.HasData() {
		t.Errorf("HasData() after EOF = false, want true")
	}
}

func TestResetClearsBufferAndEOF(t *testing.T) {
	b := New()
	b.Push([]byte("stale"))
	b.SetEOF()
	b.SetWaiting(true)
	b.Reset()
	if b.HasData() {
		t.Errorf("HasData() after Reset = true, want false")
	}
	if b.Waiting() {
		t.Errorf("Waiting() after Reset = true, want false")
	}
}

func TestTermSizeRoundTrip(t *testing.T) {
	b := New()
	b.SetTermSize(24, 80)
	rows, cols := b.TermSize()
	if rows != 24 || cols != 80 {
		t.Errorf("TermSize() = %d,%d, want 24,80", rows, cols)
	}
}
