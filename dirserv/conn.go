//go:build linux

package dirserv

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"dqx0.com/go/dirserv/internal/http1"
	"dqx0.com/go/dirserv/internal/obs"
	"dqx0.com/go/dirserv/internal/poller"
)

const (
	// sendChunk bounds a single sendfile call.
	sendChunk = 32 << 10
	// maxDiscard bounds the unread input dropped before close.
	maxDiscard = 64 << 10
)

type phase int

const (
	phaseRead phase = iota
	phaseWrite
)

// conn is one accepted connection. Only the loop goroutine touches it.
type conn struct {
	id     string
	fd     int
	peer   *net.TCPAddr
	log    obs.Logger
	opened time.Time

	lr     http1.LineReader
	parser http1.Parser
	req    *http1.Request

	phase      phase
	writeArmed bool
	status     int
	out        []byte
	file       *os.File
	filefd     int
	off        int64
	remain     int64
	sent       int64

	deadline time.Time
}

func newConn(l *loop, fd int, peer *net.TCPAddr) *conn {
	id := uuid.NewString()
	c := &conn{
		id:     id,
		fd:     fd,
		peer:   peer,
		log:    obs.With(l.log, "conn="+id+" "),
		opened: time.Now(),
	}
	c.lr.MaxLineBytes = l.srv.lineLimit()
	c.parser = http1.Parser{LR: &c.lr, MaxHeaderBytes: l.srv.headerLimit()}
	l.touch(c)
	return c
}

// Read makes the socket usable as a LineReader source.
func (c *conn) Read(p []byte) (int, error) {
	return poller.ReadFd(c.fd, p)
}

func (c *conn) requestLine() string {
	if c.req == nil {
		return "-"
	}
	return c.req.MethodToken + " " + c.req.Target
}

func (l *loop) touch(c *conn) {
	if l.srv.IdleTimeout > 0 {
		c.deadline = time.Now().Add(l.srv.IdleTimeout)
	}
}

func (l *loop) handle(c *conn, ev poller.Event) error {
	switch c.phase {
	case phaseRead:
		if ev.Readable || ev.Hangup {
			return l.readRequest(c)
		}
	case phaseWrite:
		if ev.Writable || ev.Hangup {
			return l.flush(c)
		}
	}
	return nil
}

// readRequest drains the socket, as edge-triggered registration requires,
// and advances the parser. It returns with the connection suspended when
// the socket runs dry before the request head is complete.
func (l *loop) readRequest(c *conn) error {
	for {
		st, err := c.parser.Advance()
		if err != nil {
			c.req = c.parser.Request()
			return l.rejectRequest(c, err)
		}
		switch st {
		case http1.StateDisconnected:
			c.log.Logf(obs.Debug, "client disconnected")
			return l.close(c)
		case http1.StateComplete:
			c.req = c.parser.Request()
			return l.respond(c)
		}
		if err := c.lr.Fill(c); err != nil {
			if err == poller.ErrWouldBlock {
				return nil
			}
			return l.ioError(c, "read", err)
		}
		l.touch(c)
	}
}

// flush writes pending head/body bytes and then streams the file. On a full
// send buffer it arms write readiness and returns; the next writable event
// resumes here.
func (l *loop) flush(c *conn) error {
	for len(c.out) > 0 {
		n, err := poller.WriteFd(c.fd, c.out)
		if n > 0 {
			c.out = c.out[n:]
			c.sent += int64(n)
			l.touch(c)
		}
		if err == poller.ErrWouldBlock {
			return l.armWrite(c)
		}
		if err != nil {
			return l.ioError(c, "write", err)
		}
	}
	for c.remain > 0 {
		n, err := poller.Sendfile(c.fd, c.filefd, &c.off, int(min(c.remain, sendChunk)))
		if err == poller.ErrWouldBlock {
			return l.armWrite(c)
		}
		if err != nil {
			// Headers are already out; the only option left is to cut the body short.
			c.log.Logf(obs.Warn, "%s: streaming aborted at offset %d: %v", c.requestLine(), c.off, err)
			return l.close(c)
		}
		if n == 0 {
			c.log.Logf(obs.Warn, "%s: file shrank, %d bytes short", c.requestLine(), c.remain)
			return l.close(c)
		}
		c.remain -= int64(n)
		c.sent += int64(n)
		l.touch(c)
	}
	return l.finish(c)
}

func (l *loop) armWrite(c *conn) error {
	if c.writeArmed {
		return nil
	}
	if err := l.p.Modify(c.fd, poller.Write|poller.Edge); err != nil {
		return fmt.Errorf("dirserv: arm write: %w", err)
	}
	c.writeArmed = true
	return nil
}

func (l *loop) finish(c *conn) error {
	c.log.Logf(obs.Info, "%s -> %d (%d bytes)", c.requestLine(), c.status, c.sent)
	l.meter.Counter("dirserv.responses", 1, obs.Label{Key: "status", Value: strconv.Itoa(c.status)})
	l.meter.Histogram("dirserv.response.bytes", float64(c.sent))
	c.discardInput()
	return l.close(c)
}

// discardInput reads away request bytes that arrived but were never parsed,
// such as the rest of a rejected head. A close with unread input sends RST.
func (c *conn) discardInput() {
	var scratch [4 << 10]byte
	for n := 0; n < maxDiscard; {
		m, err := poller.ReadFd(c.fd, scratch[:])
		if err != nil {
			return
		}
		n += m
	}
}

// ioError closes c when the peer caused err. Any other socket error is
// returned and ends the loop.
func (l *loop) ioError(c *conn, op string, err error) error {
	if poller.IsPeerGone(err) {
		c.log.Logf(obs.Warn, "%s: %v", op, err)
		return l.close(c)
	}
	return fmt.Errorf("dirserv: %s on connection %s: %w", op, c.id, err)
}
