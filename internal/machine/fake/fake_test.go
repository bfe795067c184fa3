package fake

import (
	"errors"
	"testing"

	"github.com/friscy/rve/internal/machine"
)

func TestRegZeroAlwaysReadsZero(t *testing.T) {
	m := New(machine.PageSize)
	m.SetReg(0, 0xdead)
	if got := m.Reg(0); got != 0 {
		t.Errorf("Reg(0) = %#x, want 0", got)
	}
}

func TestReadMemFaultsWithoutPermission(t *testing.T) {
	m := New(machine.PageSize)
	buf := make([]byte, 8)
	err := m.ReadMem(0, buf)
	var pf *machine.PageFault
	if !errors.As(err, &pf) {
		t.Fatalf("ReadMem = %v, want *PageFault", err)
	}
	if pf.Want != machine.ProtRead {
		t.Errorf("PageFault.Want = %v, want ProtRead", pf.Want)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	m := New(machine.PageSize)
	if err := m.SetPageAttrs(0, machine.PageSize, machine.RWX); err != nil {
		t.Fatalf("SetPageAttrs: %v", err)
	}
	want := []byte("hello")
	if err := m.WriteMem(0, want); err != nil {
		t.Fatalf("WriteMem: %v", err)
	}
	got := make([]byte, len(want))
	if err := m.ReadMem(0, got); err != nil {
		t.Fatalf("ReadMem: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("ReadMem = %q, want %q", got, want)
	}
}

func TestSetResultWritesA0(t *testing.T) {
	m := New(machine.PageSize)
	m.SetResult(-22)
	if got := int64(m.Reg(10)); got != -22 {
		t.Errorf("Reg(10) = %d, want -22", got)
	}
}

func TestStopResumeTrackedForSuspension(t *testing.T) {
	m := New(machine.PageSize)
	m.Stop()
	if !m.Stopped() || m.StopCount != 1 {
		t.Errorf("after Stop: stopped=%v count=%d, want true 1", m.Stopped(), m.StopCount)
	}
	m.Resume()
	if m.Stopped() || m.ResumeCount != 1 {
		t.Errorf("after Resume: stopped=%v count=%d, want false 1", m.Stopped(), m.ResumeCount)
	}
}

func TestCrossPageWriteRequiresBothPagesWritable(t *testing.T) {
	m := New(2 * machine.PageSize)
	if err := m.SetPageAttrs(0, machine.PageSize, machine.RWX); err != nil {
		t.Fatalf("SetPageAttrs: %v", err)
	}
	// second page left with no permissions
	data := make([]byte, 16)
	err := m.WriteMem(machine.PageSize-8, data)
	if err == nil {
		t.Fatalf("WriteMem across unmapped boundary = nil error, want *PageFault")
	}
}

func TestUserdataSlot(t *testing.T) {
	m := New(machine.PageSize)
	m.SetUserdata("guest-state")
	if got := m.Userdata(); got != "guest-state" {
		t.Errorf("Userdata() = %v, want guest-state", got)
	}
}
