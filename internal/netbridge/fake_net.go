package netbridge

import (
	"errors"
	"sync"
)

// LoopbackHostNet is an in-process HostNet fake: "sockets" are simple byte
// pipes keyed by an incrementing integer fd, with no real kernel socket
// involved. It exists so netbridge and the syscalls dispatch can be
// exercised in tests without opening host file descriptors.
type LoopbackHostNet struct {
	mu       sync.Mutex
	nextFD   int32
	peers    map[int32]int32 // connected pairs
	inboxes  map[int32][]byte
	listening map[int32][]int32 // listening fd -> queued connecting fds
}

func NewLoopbackHostNet() *LoopbackHostNet {
	return &LoopbackHostNet{
		nextFD:    1,
		peers:     map[int32]int32{},
		inboxes:   map[int32][]byte{},
		listening: map[int32][]int32{},
	}
}

func (l *LoopbackHostNet) Socket(domain, typ, protocol int32) (int32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fd := l.nextFD
	l.nextFD++
	l.inboxes[fd] = nil
	return fd, nil
}

func (l *LoopbackHostNet) Bind(hostFD int32, addr []byte) error { return nil }

func (l *LoopbackHostNet) Listen(hostFD int32, backlog int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listening[hostFD] = nil
	return nil
}

// Connect registers the dialer as a pending connection on the listener; a
// subsequent Accept on the listening fd will pair them.
func (l *LoopbackHostNet) Connect(hostFD int32, addr []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for listenFD := range l.listening {
		l.listening[listenFD] = append(l.listening[listenFD], hostFD)
		return nil
	}
	return errors.New("loopback: no listener")
}

func (l *LoopbackHostNet) Accept(hostFD int32) (int32, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pending := l.listening[hostFD]
	if len(pending) == 0 {
		return 0, nil, errors.New("loopback: would block")
	}
	peerFD := pending[0]
	l.listening[hostFD] = pending[1:]

	acceptedFD := l.nextFD
	l.nextFD++
	l.inboxes[acceptedFD] = nil
	l.peers[acceptedFD] = peerFD
	l.peers[peerFD] = acceptedFD
	return acceptedFD, nil, nil
}

func (l *LoopbackHostNet) SendTo(hostFD int32, data []byte, addr []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	peer, ok := l.peers[hostFD]
	if !ok {
		return 0, errors.New("loopback: not connected")
	}
	l.inboxes[peer] = append(l.inboxes[peer], data...)
	return len(data), nil
}

func (l *LoopbackHostNet) RecvFrom(hostFD int32, buf []byte) (int, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inbox := l.inboxes[hostFD]
	if len(inbox) == 0 {
		return 0, nil, errors.New("loopback: would block")
	}
	n := copy(buf, inbox)
	l.inboxes[hostFD] = inbox[n:]
	return n, nil, nil
}

func (l *LoopbackHostNet) SetSockOpt(hostFD, level, opt int32, value []byte) error { return nil }

func (l *LoopbackHostNet) GetSockOpt(hostFD, level, opt int32, optlen int32) ([]byte, error) {
	return make([]byte, optlen), nil
}

func (l *LoopbackHostNet) Shutdown(hostFD int32, how int32) error { return nil }

func (l *LoopbackHostNet) GetSockName(hostFD int32) ([]byte, error) { return []byte{}, nil }

func (l *LoopbackHostNet) GetPeerName(hostFD int32) ([]byte, error) { return []byte{}, nil }

func (l *LoopbackHostNet) Close(hostFD int32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inboxes, hostFD)
	if peer, ok := l.peers[hostFD]; ok {
		delete(l.peers, hostFD)
		delete(l.peers, peer)
	}
	return nil
}
