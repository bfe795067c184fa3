// Package netbridge maps guest socket syscalls onto real host sockets. The
// guest addresses sockets through a disjoint fd range (>= 1000) so the VFS
// fd table and the socket table never collide; a guest program's own
// read/write on a socket fd is detected here and routed to send/recv by
// the syscalls package before it ever reaches the VFS.
package netbridge

import "sync"

// GuestFDBase is the first fd number handed out for a guest socket.
const GuestFDBase = 1000

// HostNet is the seam between this package and the real operating system,
// so tests can exercise socket syscall handling against an in-process
// loopback fake instead of opening real file descriptors.
type HostNet interface {
	Socket(domain, typ, protocol int32) (hostFD int32, err error)
	Bind(hostFD int32, addr []byte) error
	Listen(hostFD int32, backlog int32) error
	Accept(hostFD int32) (newHostFD int32, peerAddr []byte, err error)
	Connect(hostFD int32, addr []byte) error
	SendTo(hostFD int32, data []byte, addr []byte) (int, error)
	RecvFrom(hostFD int32, buf []byte) (int, []byte, error)
	SetSockOpt(hostFD, level, opt int32, value []byte) error
	GetSockOpt(hostFD, level, opt int32, optlen int32) ([]byte, error)
	Shutdown(hostFD int32, how int32) error
	GetSockName(hostFD int32) ([]byte, error)
	GetPeerName(hostFD int32) ([]byte, error)
	Close(hostFD int32) error
}

// Socket is the guest-visible state for one socket: the guest/host fd
// pair plus the flags the bridge needs to translate syscalls correctly.
type Socket struct {
	GuestFD     int32
	HostFD      int32
	Domain      int32
	Type        int32
	Protocol    int32
	NonBlocking bool
	Connected   bool
	Listening   bool
}

// Bridge owns the guest-fd <-> host-fd table.
type Bridge struct {
	mu      sync.Mutex
	host    HostNet
	sockets map[int32]*Socket
	nextFD  int32
}

func New(host HostNet) *Bridge {
	return &Bridge{host: host, sockets: map[int32]*Socket{}, nextFD: GuestFDBase}
}

// IsSocketFD reports whether fd lives in the disjoint guest-socket range,
// so VFS read/write handlers know to route through this bridge instead.
func IsSocketFD(fd int32) bool { return fd >= GuestFDBase }

const (
	sockNonblock = 0x800
	sockCloexec  = 0x80000
	sockTypeMask = 0xff
)

// Socket implements the socket() syscall.
func (b *Bridge) Socket(domain, typ, protocol int32) (int32, int) {
	nonBlocking := typ&sockNonblock != 0
	rawType := typ &^ (sockNonblock | sockCloexec)

	hostFD, err := b.host.Socket(domain, rawType, protocol)
	if err != nil {
		return 0, -22 // EINVAL
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	guestFD := b.nextFD
	b.nextFD++
	b.sockets[guestFD] = &Socket{
		GuestFD: guestFD, HostFD: hostFD,
		Domain: domain, Type: rawType, Protocol: protocol,
		NonBlocking: nonBlocking,
	}
	return guestFD, 0
}

func (b *Bridge) lookup(guestFD int32) (*Socket, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sockets[guestFD]
	if !ok {
		return nil, -9 // EBADF
	}
	return s, 0
}

func (b *Bridge) Bind(guestFD int32, addr []byte) int {
	s, errno := b.lookup(guestFD)
	if errno != 0 {
		return errno
	}
	if err := b.host.Bind(s.HostFD, addr); err != nil {
		return -13 // EACCES
	}
	return 0
}

func (b *Bridge) Listen(guestFD int32, backlog int32) int {
	s, errno := b.lookup(guestFD)
	if errno != 0 {
		return errno
	}
	if err := b.host.Listen(s.HostFD, backlog); err != nil {
		return -22
	}
	s.Listening = true
	return 0
}

// Accept implements accept/accept4, registering the new connection under a
// fresh guest fd in the same disjoint range.
func (b *Bridge) Accept(guestFD int32, flags int32) (int32, []byte, int) {
	s, errno := b.lookup(guestFD)
	if errno != 0 {
		return 0, nil, errno
	}
	newHostFD, peerAddr, err := b.host.Accept(s.HostFD)
	if err != nil {
		return 0, nil, -11 // EAGAIN
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	newGuestFD := b.nextFD
	b.nextFD++
	b.sockets[newGuestFD] = &Socket{
		GuestFD: newGuestFD, HostFD: newHostFD,
		Domain: s.Domain, Type: s.Type, Protocol: s.Protocol,
		NonBlocking: flags&sockNonblock != 0,
		Connected:   true,
	}
	return newGuestFD, peerAddr, 0
}

func (b *Bridge) Connect(guestFD int32, addr []byte) int {
	s, errno := b.lookup(guestFD)
	if errno != 0 {
		return errno
	}
	if err := b.host.Connect(s.HostFD, addr); err != nil {
		return -111 // ECONNREFUSED
	}
	s.Connected = true
	return 0
}

func (b *Bridge) SendTo(guestFD int32, data []byte, addr []byte) (int, int) {
	s, errno := b.lookup(guestFD)
	if errno != 0 {
		return 0, errno
	}
	n, err := b.host.SendTo(s.HostFD, data, addr)
	if err != nil {
		return 0, -32 // EPIPE
	}
	return n, 0
}

func (b *Bridge) RecvFrom(guestFD int32, buf []byte) (int, []byte, int) {
	s, errno := b.lookup(guestFD)
	if errno != 0 {
		return 0, nil, errno
	}
	n, from, err := b.host.RecvFrom(s.HostFD, buf)
	if err != nil {
		return 0, nil, -11 // EAGAIN
	}
	return n, from, 0
}

func (b *Bridge) SetSockOpt(guestFD, level, opt int32, value []byte) int {
	s, errno := b.lookup(guestFD)
	if errno != 0 {
		return errno
	}
	if err := b.host.SetSockOpt(s.HostFD, level, opt, value); err != nil {
		return -22
	}
	return 0
}

func (b *Bridge) GetSockOpt(guestFD, level, opt int32, optlen int32) ([]byte, int) {
	s, errno := b.lookup(guestFD)
	if errno != 0 {
		return nil, errno
	}
	v, err := b.host.GetSockOpt(s.HostFD, level, opt, optlen)
	if err != nil {
		return nil, -22
	}
	return v, 0
}

func (b *Bridge) Shutdown(guestFD int32, how int32) int {
	s, errno := b.lookup(guestFD)
	if errno != 0 {
		return errno
	}
	if err := b.host.Shutdown(s.HostFD, how); err != nil {
		return -107 // ENOTCONN
	}
	return 0
}

func (b *Bridge) GetSockName(guestFD int32) ([]byte, int) {
	s, errno := b.lookup(guestFD)
	if errno != 0 {
		return nil, errno
	}
	addr, err := b.host.GetSockName(s.HostFD)
	if err != nil {
		return nil, -22
	}
	return addr, 0
}

func (b *Bridge) GetPeerName(guestFD int32) ([]byte, int) {
	s, errno := b.lookup(guestFD)
	if errno != 0 {
		return nil, errno
	}
	addr, err := b.host.GetPeerName(s.HostFD)
	if err != nil {
		return nil, -107
	}
	return addr, 0
}

// Close removes guestFD from the table and closes its host-side fd.
func (b *Bridge) Close(guestFD int32) int {
	b.mu.Lock()
	s, ok := b.sockets[guestFD]
	if ok {
		delete(b.sockets, guestFD)
	}
	b.mu.Unlock()
	if !ok {
		return -9
	}
	b.host.Close(s.HostFD)
	return 0
}

// Lookup exposes the Socket for a guest fd so epoll readiness checks can
// find the underlying host fd to poll.
func (b *Bridge) Lookup(guestFD int32) (*Socket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sockets[guestFD]
	return s, ok
}
