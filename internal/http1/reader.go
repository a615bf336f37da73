package http1

import (
	"errors"
	"strings"
)

var (
	ErrMalformedRequest = errors.New("http1: malformed request line")
	ErrURITooLong       = errors.New("http1: request line too long")
	ErrHeaderTooLarge   = errors.New("http1: header section too large")
)

// Method is the closed set of methods the server distinguishes.
type Method int

const (
	MethodOther Method = iota
	MethodGet
)

// ParseMethod classifies a method token case-insensitively.
func ParseMethod(tok string) Method {
	if strings.EqualFold(tok, "GET") {
		return MethodGet
	}
	return MethodOther
}

func (m Method) String() string {
	if m == MethodGet {
		return "GET"
	}
	return "OTHER"
}

// Request is what the server keeps from a request head. Header lines are
// read and discarded.
type Request struct {
	Method      Method
	MethodToken string
	Target      string // request-target as received
	Proto       string
	Path        string // Target without query/fragment, percent-decoded
}

// State is the progress of a Parser.
type State int

const (
	StateNeedMore State = iota
	StateComplete
	// StateDisconnected means the peer closed before sending any byte of a
	// request line.
	StateDisconnected
)

// Parser reads one request head from a LineReader. Advance may be called
// any number of times as input arrives; it never blocks.
type Parser struct {
	LR             *LineReader
	MaxHeaderBytes int

	req         *Request
	headerBytes int
	done        bool
}

// Advance consumes as many buffered lines as possible.
func (p *Parser) Advance() (State, error) {
	if p.done {
		return StateComplete, nil
	}
	for p.req == nil {
		line, ok, err := p.LR.Next()
		if errors.Is(err, ErrLineTooLong) {
			return StateNeedMore, ErrURITooLong
		}
		if err != nil {
			return StateNeedMore, err
		}
		if !ok {
			if p.LR.Exhausted() {
				return StateDisconnected, nil
			}
			return StateNeedMore, nil
		}
		if line == "" {
			// Leading empty lines before a request line are ignored.
			continue
		}
		req, err := parseRequestLine(line)
		if err != nil {
			return StateNeedMore, err
		}
		p.req = req
	}
	for {
		line, ok, err := p.LR.Next()
		if errors.Is(err, ErrLineTooLong) {
			return StateNeedMore, ErrHeaderTooLarge
		}
		if err != nil {
			return StateNeedMore, err
		}
		if !ok {
			if p.LR.EOF() {
				// Peer half-closed mid-headers; answer what we have.
				p.done = true
				return StateComplete, nil
			}
			return StateNeedMore, nil
		}
		if line == "" {
			p.done = true
			return StateComplete, nil
		}
		p.headerBytes += len(line)
		if p.MaxHeaderBytes > 0 && p.headerBytes > p.MaxHeaderBytes {
			return StateNeedMore, ErrHeaderTooLarge
		}
	}
}

// Request returns the parsed request, or nil before the request line has
// been read.
func (p *Parser) Request() *Request { return p.req }

func parseRequestLine(line string) (*Request, error) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return nil, ErrMalformedRequest
	}
	method, target, proto := parts[0], parts[1], parts[2]
	if len(proto) < 5 || !strings.EqualFold(proto[:5], "HTTP/") {
		return nil, ErrMalformedRequest
	}
	if !strings.HasPrefix(target, "/") {
		return nil, ErrMalformedRequest
	}
	p := target
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return &Request{
		Method:      ParseMethod(method),
		MethodToken: method,
		Target:      target,
		Proto:       proto,
		Path:        DecodePath(p),
	}, nil
}
