// Package guest bundles every piece of per-process emulator state into one
// explicitly-passed struct instead of package-level globals: the exec
// context, fork state, scheduler, VFS, memory manager, I/O bridge, and
// network bridge all live here and travel together through the syscall
// dispatcher and the exec engine.
package guest

import (
	"encoding/json"

	"github.com/friscy/rve/internal/forkengine"
	"github.com/friscy/rve/internal/iobridge"
	"github.com/friscy/rve/internal/memmgr"
	"github.com/friscy/rve/internal/netbridge"
	"github.com/friscy/rve/internal/sched"
	"github.com/friscy/rve/internal/vfs"
)

// ExecCtx is the currently loaded program's bookkeeping.
type ExecCtx struct {
	MainBytes      []byte
	InterpBytes    []byte
	MainBase       uint64 // PIE base, 0 for non-PIE
	MainRWStart    uint64
	MainRWEnd      uint64
	InterpBase     uint64
	InterpRWStart  uint64
	InterpRWEnd    uint64
	InterpEntry    uint64
	OrigStackTop   uint64
	HeapStart      uint64
	HeapSize       uint64
	EnvStrings     []string
	Dynamic        bool
	MainPath       string
}

// State is the single owned struct every syscall handler and the exec
// engine receive explicitly, rather than reaching into package globals.
type State struct {
	Exec  ExecCtx
	Fork  *forkengine.State
	Sched *sched.Scheduler
	VFS   *vfs.FS
	Mem   *memmgr.Manager
	IO    *iobridge.Bridge
	Net   *netbridge.Bridge

	// Epoll instances keyed by guest epoll fd.
	Epoll map[int32]*EpollInstance
}

// EpollInstance tracks one epoll_create1 instance: the set of watched fds
// and the event mask/user-data word registered for each.
type EpollInstance struct {
	Watches map[int32]EpollWatch
}

type EpollWatch struct {
	Events   uint32
	UserData uint64
}

// New assembles a fresh State around the given collaborators.
func New(vfsFS *vfs.FS, mem *memmgr.Manager, io *iobridge.Bridge, net *netbridge.Bridge, schedule *sched.Scheduler) *State {
	return &State{
		Fork:  forkengine.NewState(),
		Sched: schedule,
		VFS:   vfsFS,
		Mem:   mem,
		IO:    io,
		Net:   net,
		Epoll: map[int32]*EpollInstance{},
	}
}

// debugDump is the JSON-serializable projection of State used by `rve
// inspect --running`; it deliberately excludes raw memory/register content
// and fork-snapshot byte buffers, surfacing only the bookkeeping a human
// debugging a stuck guest would want to see at a glance.
type debugDump struct {
	MainPath     string   `json:"main_path"`
	Dynamic      bool     `json:"dynamic"`
	HeapStart    uint64   `json:"heap_start"`
	HeapSize     uint64   `json:"heap_size"`
	MmapFrontier uint64   `json:"mmap_frontier"`
	BrkCurrent   uint64   `json:"brk_current"`
	InChild      bool     `json:"in_child"`
	ChildPID     int32    `json:"child_pid,omitempty"`
	ThreadCount  int      `json:"thread_count"`
	EnvStrings   []string `json:"env,omitempty"`
}

// DebugDump renders State as indented JSON for `rve inspect --running`.
func (s *State) DebugDump() ([]byte, error) {
	threads := 0
	for _, t := range s.Sched.Threads {
		if t != nil {
			threads++
		}
	}
	d := debugDump{
		MainPath:     s.Exec.MainPath,
		Dynamic:      s.Exec.Dynamic,
		HeapStart:    s.Exec.HeapStart,
		HeapSize:     s.Exec.HeapSize,
		MmapFrontier: s.Mem.State.MmapFrontier,
		BrkCurrent:   s.Mem.State.BrkCurrent,
		InChild:      s.Fork.InChild,
		ChildPID:     s.Fork.ChildPID,
		ThreadCount:  threads,
		EnvStrings:   s.Exec.EnvStrings,
	}
	return json.MarshalIndent(d, "", "  ")
}
