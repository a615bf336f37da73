//go:build linux

package poller

import (
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"
)

func listen(t *testing.T) *Listener {
	t.Helper()
	ln, err := Listen("127.0.0.1", 0, 16)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func dial(t *testing.T, ln *Listener) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(ln.Addr().Port)))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newPoller(t *testing.T) *Poller {
	t.Helper()
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// acceptOne waits for the listener to become readable and accepts.
func acceptOne(t *testing.T, p *Poller, ln *Listener) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		evs, err := p.Wait(100 * time.Millisecond)
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		for _, ev := range evs {
			if ev.Fd != ln.Fd() {
				continue
			}
			fd, peer, err := ln.Accept()
			if err != nil {
				t.Fatalf("Accept: %v", err)
			}
			if peer == nil || peer.Port == 0 {
				t.Fatalf("peer address = %v", peer)
			}
			return fd
		}
	}
	t.Fatal("listener never became readable")
	return -1
}

func TestListenerAcceptWouldBlock(t *testing.T) {
	ln := listen(t)
	if ln.Addr().Port == 0 {
		t.Fatal("ephemeral port not reported")
	}
	if _, _, err := ln.Accept(); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Accept on empty queue err=%v, want ErrWouldBlock", err)
	}
}

func TestPollerRegistrationOnce(t *testing.T) {
	p := newPoller(t)
	ln := listen(t)
	if err := p.Add(ln.Fd(), Read); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := p.Add(ln.Fd(), Read); !errors.Is(err, ErrRegistered) {
		t.Fatalf("second Add err=%v, want ErrRegistered", err)
	}
	if p.Len() != 1 || !p.Registered(ln.Fd()) {
		t.Fatalf("Len=%d Registered=%v", p.Len(), p.Registered(ln.Fd()))
	}
	if err := p.Remove(ln.Fd()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := p.Remove(ln.Fd()); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("second Remove err=%v, want ErrNotRegistered", err)
	}
	if err := p.Modify(ln.Fd(), Write); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Modify unregistered err=%v", err)
	}
}

func TestPollerReadWrite(t *testing.T) {
	p := newPoller(t)
	ln := listen(t)
	if err := p.Add(ln.Fd(), Read); err != nil {
		t.Fatalf("Add listener: %v", err)
	}
	client := dial(t, ln)
	fd := acceptOne(t, p, ln)
	defer CloseFd(fd)
	if err := p.Add(fd, Read|Edge); err != nil {
		t.Fatalf("Add conn: %v", err)
	}

	buf := make([]byte, 64)
	if _, err := ReadFd(fd, buf); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Read before data err=%v, want ErrWouldBlock", err)
	}
	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	var got bool
	for i := 0; i < 20 && !got; i++ {
		evs, err := p.Wait(100 * time.Millisecond)
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		for _, ev := range evs {
			if ev.Fd == fd && ev.Readable {
				got = true
			}
		}
	}
	if !got {
		t.Fatal("no read readiness for connection")
	}
	n, err := ReadFd(fd, buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("Read = %q, %v", buf[:n], err)
	}

	if err := p.Modify(fd, Write|Edge); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if n, err := WriteFd(fd, []byte("pong")); n != 4 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	rb := make([]byte, 4)
	if _, err := io.ReadFull(client, rb); err != nil || string(rb) != "pong" {
		t.Fatalf("client read = %q, %v", rb, err)
	}

	_ = client.Close()
	time.Sleep(20 * time.Millisecond)
	if _, err := ReadFd(fd, buf); err != io.EOF {
		t.Fatalf("Read after peer close err=%v, want io.EOF", err)
	}
	if err := p.Remove(fd); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestPollerWake(t *testing.T) {
	p := newPoller(t)
	done := make(chan error, 1)
	go func() {
		evs, err := p.Wait(-1)
		if err == nil && len(evs) != 0 {
			err = errors.New("wake surfaced as an event")
		}
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := p.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait was not interrupted by Wake")
	}
}

func TestIsPeerGone(t *testing.T) {
	if !IsPeerGone(io.EOF) {
		t.Error("io.EOF should count as peer gone")
	}
	if IsPeerGone(errors.New("boom")) {
		t.Error("plain error should not count as peer gone")
	}
}
