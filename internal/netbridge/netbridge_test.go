package netbridge

import "testing"

func TestGuestFDSpaceDisjointFromVFS(t *testing.T) {
	b := New(NewLoopbackHostNet())
	fd, errno := b.Socket(2, 1, 0)
	if errno != 0 {
		t.Fatalf("Socket errno = %d", errno)
	}
	if fd < GuestFDBase {
		t.Errorf("guest socket fd = %d, want >= %d", fd, GuestFDBase)
	}
	if !IsSocketFD(fd) {
		t.Errorf("IsSocketFD(%d) = false, want true", fd)
	}
	if IsSocketFD(3) {
		t.Errorf("IsSocketFD(3) = true, want false (VFS fd range)")
	}
}

func TestConnectAcceptSendRecv(t *testing.T) {
	host := NewLoopbackHostNet()
	b := New(host)

	serverFD, _ := b.Socket(2, 1, 0)
	b.Bind(serverFD, nil)
	b.Listen(serverFD, 1)

	clientFD, _ := b.Socket(2, 1, 0)
	if errno := b.Connect(clientFD, nil); errno != 0 {
		t.Fatalf("Connect errno = %d", errno)
	}

	acceptedFD, _, errno := b.Accept(serverFD, 0)
	if errno != 0 {
		t.Fatalf("Accept errno = %d", errno)
	}
	if !IsSocketFD(acceptedFD) {
		t.Errorf("accepted fd %d not in socket range", acceptedFD)
	}

	n, errno := b.SendTo(clientFD, []byte("ping"), nil)
	if errno != 0 || n != 4 {
		t.Fatalf("SendTo = %d, %d, want 4, 0", n, errno)
	}

	buf := make([]byte, 16)
	n, _, errno = b.RecvFrom(acceptedFD, buf)
	if errno != 0 {
		t.Fatalf("RecvFrom errno = %d", errno)
	}
	if string(buf[:n]) != "ping" {
		t.Errorf("RecvFrom = %q, want ping", buf[:n])
	}
}

func TestCloseRemovesFromTable(t *testing.T) {
	b := New(NewLoopbackHostNet())
	fd, _ := b.Socket(2, 1, 0)
	if errno := b.Close(fd); errno != 0 {
		t.Fatalf("Close errno = %d", errno)
	}
	if _, ok := b.Lookup(fd); ok {
		t.Errorf("socket still present after Close")
	}
	if errno := b.Bind(fd, nil); errno != -9 {
		t.Errorf("Bind on closed fd errno = %d, want EBADF", errno)
	}
}

func TestRecvFromWithNoDataReturnsEAGAIN(t *testing.T) {
	b := New(NewLoopbackHostNet())
	fd, _ := b.Socket(2, 2, 0)
	buf := make([]byte, 8)
	_, _, errno := b.RecvFrom(fd, buf)
	if errno != -11 {
		t.Errorf("RecvFrom(no data) errno = %d, want EAGAIN", errno)
	}
}
