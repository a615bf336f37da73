//go:build linux

package dirserv

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"dqx0.com/go/dirserv/internal/http1"
	"dqx0.com/go/dirserv/internal/obs"
	"dqx0.com/go/dirserv/internal/resolve"
)

// respond resolves a complete request and starts writing the response.
func (l *loop) respond(c *conn) error {
	req := c.req
	if req.Method != http1.MethodGet {
		return l.respondStatus(c, 501,
			fmt.Sprintf("Method %s is not implemented by this server.", req.MethodToken),
			map[string]string{"Allow": "GET"})
	}

	res := l.res.Resolve(req.Path)
	switch res.Kind {
	case resolve.Directory:
		if !strings.HasSuffix(req.Path, "/") {
			loc := http1.EncodePath(req.Path + "/")
			return l.respondStatus(c, 301, "Moved to "+loc+".", map[string]string{"Location": loc})
		}
		body := renderListing(req.Path, res.Entries)
		return l.start(c, &http1.ResponseHead{
			Status:        200,
			ContentType:   http1.HTMLContentType,
			ContentLength: int64(len(body)),
		}, body, nil, 0)
	case resolve.RegularFile:
		return l.start(c, &http1.ResponseHead{
			Status:        200,
			ContentType:   http1.ContentType(res.Name),
			ContentLength: res.Size,
		}, nil, res.File, res.Size)
	case resolve.Missing:
		return l.respondStatus(c, 404, "No such file or directory.", nil)
	default:
		c.log.Logf(obs.Debug, "refusing %q (%v): %v", req.Path, res.Kind, res.Err)
		return l.respondStatus(c, 403, "You don't have permission to access this resource.", nil)
	}
}

// rejectRequest answers a request head the parser refused.
func (l *loop) rejectRequest(c *conn, err error) error {
	switch {
	case errors.Is(err, http1.ErrURITooLong):
		return l.respondStatus(c, 414, "The request line is too long.", nil)
	case errors.Is(err, http1.ErrHeaderTooLarge):
		return l.respondStatus(c, 431, "The request header section is too large.", nil)
	default:
		return l.respondStatus(c, 400, "Malformed request line.", nil)
	}
}

// respondStatus sends a generated HTML page for a non-200 status.
func (l *loop) respondStatus(c *conn, status int, text string, hdr map[string]string) error {
	body := renderStatusPage(status, text)
	return l.start(c, &http1.ResponseHead{
		Status:        status,
		ContentType:   http1.HTMLContentType,
		ContentLength: int64(len(body)),
		Header:        hdr,
	}, body, nil, 0)
}

// start queues head and body, attaches f for streaming and switches the
// connection to the write phase.
func (l *loop) start(c *conn, head *http1.ResponseHead, body []byte, f *os.File, size int64) error {
	var buf bytes.Buffer
	_, _ = head.WriteTo(&buf)
	buf.Write(body)
	c.out = buf.Bytes()
	c.status = head.Status
	if f != nil {
		c.file, c.filefd, c.off, c.remain = f, int(f.Fd()), 0, size
	}
	c.phase = phaseWrite
	return l.flush(c)
}

// renderListing builds the HTML index of dir: one table row per entry with
// an escaped link and the entry's size in bytes.
func renderListing(dir string, entries []resolve.Entry) []byte {
	title := "Index of " + dir
	table := element(atom.Table)
	for _, e := range entries {
		name, href := e.Name, http1.EncodePath(e.Name)
		if e.Dir {
			name += "/"
			href += "/"
		}
		link := element(atom.A, html.Attribute{Key: "href", Val: href})
		link.AppendChild(text(name))
		table.AppendChild(children(element(atom.Tr),
			children(element(atom.Td), link),
			children(element(atom.Td), text(strconv.FormatInt(e.Size, 10))),
		))
	}
	body := children(element(atom.Body),
		children(element(atom.H1), text(title)),
		table,
	)
	return renderPage(title, body)
}

func renderStatusPage(status int, msg string) []byte {
	title := strconv.Itoa(status) + " " + http1.StatusText(status)
	body := children(element(atom.Body),
		children(element(atom.H2), text(title)),
		children(element(atom.P), text(msg)),
		element(atom.Hr),
	)
	return renderPage(title, body)
}

func renderPage(title string, body *html.Node) []byte {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(children(element(atom.Html),
		children(element(atom.Head), children(element(atom.Title), text(title))),
		body,
	))
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = html.Render(&buf, doc)
	return buf.Bytes()
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func children(n *html.Node, kids ...*html.Node) *html.Node {
	for _, k := range kids {
		n.AppendChild(k)
	}
	return n
}
