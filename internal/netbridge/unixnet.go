package netbridge

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// UnixHostNet implements HostNet against real host file descriptors via
// golang.org/x/sys/unix, the same raw-syscall posture the rest of this
// codebase's host-facing packages use instead of the higher-level net
// package, since the guest's sockaddr bytes must be translated at the byte
// level rather than through net.Addr.
type UnixHostNet struct{}

func (UnixHostNet) Socket(domain, typ, protocol int32) (int32, error) {
	fd, err := unix.Socket(int(domain), int(typ), int(protocol))
	return int32(fd), err
}

func (UnixHostNet) Bind(hostFD int32, addr []byte) error {
	sa, err := decodeSockaddr(addr)
	if err != nil {
		return err
	}
	return unix.Bind(int(hostFD), sa)
}

func (UnixHostNet) Listen(hostFD int32, backlog int32) error {
	return unix.Listen(int(hostFD), int(backlog))
}

func (UnixHostNet) Accept(hostFD int32) (int32, []byte, error) {
	nfd, sa, err := unix.Accept(int(hostFD))
	if err != nil {
		return 0, nil, err
	}
	return int32(nfd), encodeSockaddr(sa), nil
}

func (UnixHostNet) Connect(hostFD int32, addr []byte) error {
	sa, err := decodeSockaddr(addr)
	if err != nil {
		return err
	}
	return unix.Connect(int(hostFD), sa)
}

func (UnixHostNet) SendTo(hostFD int32, data []byte, addr []byte) (int, error) {
	if len(addr) == 0 {
		return unix.Write(int(hostFD), data)
	}
	sa, err := decodeSockaddr(addr)
	if err != nil {
		return 0, err
	}
	if err := unix.Sendto(int(hostFD), data, 0, sa); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (UnixHostNet) RecvFrom(hostFD int32, buf []byte) (int, []byte, error) {
	n, from, err := unix.Recvfrom(int(hostFD), buf, 0)
	if err != nil {
		return 0, nil, err
	}
	var fromBytes []byte
	if from != nil {
		fromBytes = encodeSockaddr(from)
	}
	return n, fromBytes, nil
}

func (UnixHostNet) SetSockOpt(hostFD, level, opt int32, value []byte) error {
	return unix.SetsockoptString(int(hostFD), int(level), int(opt), string(value))
}

func (UnixHostNet) GetSockOpt(hostFD, level, opt int32, optlen int32) ([]byte, error) {
	v, err := unix.GetsockoptInt(int(hostFD), int(level), int(opt))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf, nil
}

func (UnixHostNet) Shutdown(hostFD int32, how int32) error {
	return unix.Shutdown(int(hostFD), int(how))
}

func (UnixHostNet) GetSockName(hostFD int32) ([]byte, error) {
	sa, err := unix.Getsockname(int(hostFD))
	if err != nil {
		return nil, err
	}
	return encodeSockaddr(sa), nil
}

func (UnixHostNet) GetPeerName(hostFD int32) ([]byte, error) {
	sa, err := unix.Getpeername(int(hostFD))
	if err != nil {
		return nil, err
	}
	return encodeSockaddr(sa), nil
}

func (UnixHostNet) Close(hostFD int32) error {
	return unix.Close(int(hostFD))
}

const (
	afInet  = 2
	afInet6 = 10
	afUnix  = 1
)

// decodeSockaddr turns the raw guest sockaddr bytes (as the ABI defines
// struct sockaddr_in / sockaddr_in6 / sockaddr_un) into a unix.Sockaddr.
// Only the address families guest programs practically use over this
// bridge are supported; anything else is rejected rather than guessed at.
func decodeSockaddr(b []byte) (unix.Sockaddr, error) {
	if len(b) < 2 {
		return nil, unix.EINVAL
	}
	family := binary.LittleEndian.Uint16(b[0:2])
	switch family {
	case afInet:
		if len(b) < 16 {
			return nil, unix.EINVAL
		}
		sa := &unix.SockaddrInet4{Port: int(binary.BigEndian.Uint16(b[2:4]))}
		copy(sa.Addr[:], b[4:8])
		return sa, nil
	case afInet6:
		if len(b) < 28 {
			return nil, unix.EINVAL
		}
		sa := &unix.SockaddrInet6{Port: int(binary.BigEndian.Uint16(b[2:4]))}
		copy(sa.Addr[:], b[8:24])
		return sa, nil
	case afUnix:
		path := cstring(b[2:])
		return &unix.SockaddrUnix{Name: path}, nil
	default:
		return nil, unix.EAFNOSUPPORT
	}
}

// encodeSockaddr is decodeSockaddr's inverse, used for accept/getsockname/
// getpeername results handed back to the guest.
func encodeSockaddr(sa unix.Sockaddr) []byte {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		b := make([]byte, 16)
		binary.LittleEndian.PutUint16(b[0:2], afInet)
		binary.BigEndian.PutUint16(b[2:4], uint16(v.Port))
		copy(b[4:8], v.Addr[:])
		return b
	case *unix.SockaddrInet6:
		b := make([]byte, 28)
		binary.LittleEndian.PutUint16(b[0:2], afInet6)
		binary.BigEndian.PutUint16(b[2:4], uint16(v.Port))
		copy(b[8:24], v.Addr[:])
		return b
	case *unix.SockaddrUnix:
		b := make([]byte, 2+len(v.Name)+1)
		binary.LittleEndian.PutUint16(b[0:2], afUnix)
		copy(b[2:], v.Name)
		return b
	default:
		return nil
	}
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
