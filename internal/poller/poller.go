//go:build linux

// Package poller wraps the Linux readiness facilities (epoll, eventfd and
// raw non-blocking sockets) used by the single event loop. A Poller is owned
// by one goroutine; only Wake may be called from elsewhere.
package poller

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

var (
	ErrRegistered    = errors.New("poller: fd already registered")
	ErrNotRegistered = errors.New("poller: fd not registered")
	ErrWouldBlock    = errors.New("poller: operation would block")
)

// Interest selects the readiness conditions an fd is registered for.
type Interest uint8

const (
	Read Interest = 1 << iota
	Write
	// Edge requests edge-triggered notification. The owner must then drain
	// the fd until ErrWouldBlock before waiting again.
	Edge
)

func (i Interest) epoll() uint32 {
	var ev uint32
	if i&Read != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if i&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	if i&Edge != 0 {
		ev |= unix.EPOLLET
	}
	return ev
}

// Event reports readiness of one registered fd.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Hangup   bool
}

// Poller is a registry of fds backed by one epoll instance.
type Poller struct {
	epfd   int
	wakefd int
	fds    map[int]Interest
	buf    []unix.EpollEvent
	out    []Event
}

// New creates an epoll instance with an eventfd registered as its wake channel.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("poller: epoll_create1: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("poller: eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("poller: register wake fd: %w", err)
	}
	return &Poller{
		epfd:   epfd,
		wakefd: wakefd,
		fds:    make(map[int]Interest),
		buf:    make([]unix.EpollEvent, 128),
	}, nil
}

// Add registers fd. An fd may be registered at most once.
func (p *Poller) Add(fd int, in Interest) error {
	if _, ok := p.fds[fd]; ok {
		return fmt.Errorf("%w: %d", ErrRegistered, fd)
	}
	ev := unix.EpollEvent{Events: in.epoll(), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("poller: epoll_ctl add %d: %w", fd, err)
	}
	p.fds[fd] = in
	return nil
}

// Modify replaces the interest set of a registered fd.
func (p *Poller) Modify(fd int, in Interest) error {
	if _, ok := p.fds[fd]; !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, fd)
	}
	ev := unix.EpollEvent{Events: in.epoll(), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("poller: epoll_ctl mod %d: %w", fd, err)
	}
	p.fds[fd] = in
	return nil
}

// Remove deregisters fd. It must be called before the fd is closed.
func (p *Poller) Remove(fd int) error {
	if _, ok := p.fds[fd]; !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, fd)
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("poller: epoll_ctl del %d: %w", fd, err)
	}
	delete(p.fds, fd)
	return nil
}

// Registered reports whether fd is currently registered.
func (p *Poller) Registered(fd int) bool {
	_, ok := p.fds[fd]
	return ok
}

// Len returns the number of registered fds, not counting the wake fd.
func (p *Poller) Len() int { return len(p.fds) }

// Wait blocks until at least one registered fd is ready, the timeout
// elapses or Wake is called. A negative timeout waits forever. The returned
// slice is reused by the next call.
func (p *Poller) Wait(timeout time.Duration) ([]Event, error) {
	msec := -1
	if timeout >= 0 {
		msec = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	n, err := unix.EpollWait(p.epfd, p.buf, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("poller: epoll_wait: %w", err)
	}
	p.out = p.out[:0]
	for _, ev := range p.buf[:n] {
		fd := int(ev.Fd)
		if fd == p.wakefd {
			p.drainWake()
			continue
		}
		p.out = append(p.out, Event{
			Fd:       fd,
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Hangup:   ev.Events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0,
		})
	}
	return p.out, nil
}

// Wake interrupts a concurrent or subsequent Wait. Safe for use from any goroutine.
func (p *Poller) Wake() error {
	var one = [8]byte{1}
	for {
		_, err := unix.Write(p.wakefd, one[:])
		switch err {
		case nil, unix.EAGAIN:
			// EAGAIN means the counter is saturated, so a wake is pending anyway.
			return nil
		case unix.EINTR:
			continue
		default:
			return fmt.Errorf("poller: wake: %w", err)
		}
	}
}

func (p *Poller) drainWake() {
	var b [8]byte
	for {
		if _, err := unix.Read(p.wakefd, b[:]); err != unix.EINTR {
			return
		}
	}
}

// Close releases the epoll instance and the wake fd. Registered fds are
// not closed.
func (p *Poller) Close() error {
	err1 := unix.Close(p.wakefd)
	err2 := unix.Close(p.epfd)
	p.fds = nil
	return errors.Join(err1, err2)
}
