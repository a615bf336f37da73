//go:build linux

package dirserv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dqx0.com/go/dirserv/internal/obs"
	"dqx0.com/go/dirserv/internal/poller"
	"dqx0.com/go/dirserv/internal/resolve"
)

// Server serves the files and directories under Root. The zero value of
// every field except Root is usable.
type Server struct {
	Host    string // empty binds all interfaces
	Port    int
	Root    string
	Backlog int

	// IdleTimeout closes a connection that makes no read or write progress
	// for this long. Zero disables it.
	IdleTimeout    time.Duration
	MaxLineBytes   int
	MaxHeaderBytes int

	Logger obs.Logger
	Meter  obs.Meter
}

// ListenAndServe binds Host:Port and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := poller.Listen(s.Host, s.Port, s.Backlog)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the event loop on ln until ctx is cancelled or a fatal error
// occurs. It takes ownership of ln. After cancellation it closes every open
// connection and returns ErrServerClosed.
func (s *Server) Serve(ctx context.Context, ln *poller.Listener) error {
	defer ln.Close()
	res, err := resolve.New(s.Root)
	if err != nil {
		return fmt.Errorf("dirserv: %w", err)
	}
	defer res.Close()
	p, err := poller.New()
	if err != nil {
		return fmt.Errorf("dirserv: %w", err)
	}
	defer p.Close()
	if err := p.Add(ln.Fd(), poller.Read); err != nil {
		return fmt.Errorf("dirserv: register listener: %w", err)
	}

	// The only goroutine besides the loop; it touches nothing but the wake fd.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = p.Wake()
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	l := &loop{
		srv:   s,
		ln:    ln,
		p:     p,
		res:   res,
		log:   s.logger(),
		meter: s.meter(),
		conns: make(map[int]*conn),
	}
	l.log.Logf(obs.Info, "listening on %s, document root %s", ln.Addr(), s.Root)
	err = l.run(ctx)
	l.closeAll()
	return err
}

func (s *Server) logger() obs.Logger {
	if s.Logger == nil {
		return obs.NopLogger{}
	}
	return s.Logger
}

func (s *Server) meter() obs.Meter {
	if s.Meter == nil {
		return obs.NopMeter{}
	}
	return s.Meter
}

func (s *Server) lineLimit() int {
	if s.MaxLineBytes <= 0 {
		return 8 << 10
	}
	return s.MaxLineBytes
}

func (s *Server) headerLimit() int {
	if s.MaxHeaderBytes <= 0 {
		return 64 << 10
	}
	return s.MaxHeaderBytes
}

// loop is the state owned by the single event-loop goroutine.
type loop struct {
	srv   *Server
	ln    *poller.Listener
	p     *poller.Poller
	res   *resolve.Resolver
	log   obs.Logger
	meter obs.Meter
	conns map[int]*conn
}

func (l *loop) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			l.log.Logf(obs.Info, "shutting down with %d open connections", len(l.conns))
			return ErrServerClosed
		}
		events, err := l.p.Wait(l.timeout(time.Now()))
		if err != nil {
			return fmt.Errorf("dirserv: %w", err)
		}
		for _, ev := range events {
			if ev.Fd == l.ln.Fd() {
				if err := l.accept(); err != nil {
					return err
				}
				continue
			}
			c, ok := l.conns[ev.Fd]
			if !ok {
				continue
			}
			if err := l.handle(c, ev); err != nil {
				return err
			}
		}
		if err := l.reap(time.Now()); err != nil {
			return err
		}
	}
}

// timeout returns how long Wait may block: until the earliest idle
// deadline, or forever when there is none.
func (l *loop) timeout(now time.Time) time.Duration {
	if l.srv.IdleTimeout <= 0 || len(l.conns) == 0 {
		return -1
	}
	var first time.Time
	for _, c := range l.conns {
		if first.IsZero() || c.deadline.Before(first) {
			first = c.deadline
		}
	}
	if d := first.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (l *loop) reap(now time.Time) error {
	if l.srv.IdleTimeout <= 0 {
		return nil
	}
	for _, c := range l.conns {
		if now.Before(c.deadline) {
			continue
		}
		c.log.Logf(obs.Info, "idle for %v, closing", l.srv.IdleTimeout)
		l.meter.Counter("dirserv.conn.idle_timeouts", 1)
		if err := l.close(c); err != nil {
			return err
		}
	}
	return nil
}

func (l *loop) accept() error {
	fd, peer, err := l.ln.Accept()
	if err == poller.ErrWouldBlock {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dirserv: %w", err)
	}
	c := newConn(l, fd, peer)
	if err := l.p.Add(fd, poller.Read|poller.Edge); err != nil {
		_ = poller.CloseFd(fd)
		return fmt.Errorf("dirserv: register connection: %w", err)
	}
	l.conns[fd] = c
	l.meter.Counter("dirserv.conn.accepted", 1)
	c.log.Logf(obs.Info, "accepted %s fd=%d", peer, fd)
	return nil
}

// close deregisters and closes c. A deregistration failure is fatal.
func (l *loop) close(c *conn) error {
	if c.file != nil {
		_ = c.file.Close()
		c.file = nil
	}
	delete(l.conns, c.fd)
	err := l.p.Remove(c.fd)
	_ = poller.CloseFd(c.fd)
	l.meter.Counter("dirserv.conn.closed", 1)
	c.log.Logf(obs.Debug, "closed after %v", time.Since(c.opened).Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("dirserv: deregister connection: %w", err)
	}
	return nil
}

func (l *loop) closeAll() {
	for _, c := range l.conns {
		_ = l.close(c)
	}
}
