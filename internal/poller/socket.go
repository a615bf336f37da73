//go:build linux

package poller

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Listener is a bound, listening, non-blocking IPv4 TCP socket.
type Listener struct {
	fd   int
	addr *net.TCPAddr
}

// Listen creates a listening socket on host:port. An empty host binds all
// interfaces; port 0 picks an ephemeral port, see Addr.
func Listen(host string, port, backlog int) (*Listener, error) {
	var sa unix.SockaddrInet4
	sa.Port = port
	if host != "" && host != "0.0.0.0" {
		ip, err := net.ResolveIPAddr("ip4", host)
		if err != nil {
			return nil, fmt.Errorf("poller: resolve %q: %w", host, err)
		}
		copy(sa.Addr[:], ip.IP.To4())
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("poller: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("poller: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, &sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("poller: bind %s: %w", net.JoinHostPort(host, strconv.Itoa(port)), err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("poller: listen: %w", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("poller: getsockname: %w", err)
	}
	return &Listener{fd: fd, addr: tcpAddr(bound)}, nil
}

// Fd returns the listening descriptor.
func (l *Listener) Fd() int { return l.fd }

// Addr returns the bound address.
func (l *Listener) Addr() *net.TCPAddr { return l.addr }

// Accept takes exactly one pending connection. The returned fd is already
// non-blocking. ErrWouldBlock means the accept queue is empty.
func (l *Listener) Accept() (int, *net.TCPAddr, error) {
	for {
		fd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
			return fd, tcpAddr(sa), nil
		case unix.EAGAIN:
			return -1, nil, ErrWouldBlock
		case unix.EINTR, unix.ECONNABORTED:
			// The pending connection went away before we got it; try the next one.
			continue
		default:
			return -1, nil, fmt.Errorf("poller: accept: %w", err)
		}
	}
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

func tcpAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IPv4(v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3]), Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append(net.IP(nil), v.Addr[:]...), Port: v.Port}
	default:
		return &net.TCPAddr{}
	}
}

// ReadFd reads from a non-blocking socket. It returns io.EOF when the peer
// has closed its side and ErrWouldBlock when no data is available.
func ReadFd(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, err
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// WriteFd writes as much of p as the socket accepts. A short count is
// returned together with ErrWouldBlock when the send buffer fills.
func WriteFd(fd int, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(fd, p[written:])
		if n > 0 {
			written += n
		}
		switch err {
		case nil:
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return written, ErrWouldBlock
		default:
			return written, err
		}
	}
	return written, nil
}

// Sendfile copies up to count bytes from file descriptor in, starting at
// *off, to the socket out. *off is advanced by the number of bytes sent.
// A zero count with a nil error means the file ended early.
func Sendfile(out, in int, off *int64, count int) (int, error) {
	for {
		n, err := unix.Sendfile(out, in, off, count)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrWouldBlock
		default:
			return 0, err
		}
	}
}

// CloseFd closes a connection descriptor.
func CloseFd(fd int) error {
	return unix.Close(fd)
}

// IsPeerGone reports whether err was caused by the remote side going away
// rather than by a local failure.
func IsPeerGone(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case unix.ECONNRESET, unix.EPIPE, unix.ETIMEDOUT, unix.ENOTCONN,
		unix.EHOSTUNREACH, unix.ENETUNREACH, unix.ECONNABORTED:
		return true
	}
	return false
}
