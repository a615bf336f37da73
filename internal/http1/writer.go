package http1

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// ResponseHead is a status line plus the headers this server emits.
// Content-Type and Content-Length come first, extra headers follow in
// sorted order, and Connection: close is always last.
type ResponseHead struct {
	Status      int
	Reason      string
	ContentType string
	// ContentLength is omitted from the output when negative.
	ContentLength int64
	Header        map[string]string
}

// WriteTo writes the head including the terminating blank line.
func (h *ResponseHead) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: w}
	reason := h.Reason
	if reason == "" {
		reason = StatusText(h.Status)
	}
	fmt.Fprintf(cw, "HTTP/1.1 %d %s\r\n", h.Status, reason)
	if h.ContentType != "" {
		fmt.Fprintf(cw, "Content-Type: %s\r\n", sanitizeHeaderValue(h.ContentType))
	}
	if h.ContentLength >= 0 {
		fmt.Fprintf(cw, "Content-Length: %d\r\n", h.ContentLength)
	}
	keys := make([]string, 0, len(h.Header))
	for k := range h.Header {
		if strings.EqualFold(k, "Connection") || SanitizeHeaderKey(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cw, "%s: %s\r\n", k, sanitizeHeaderValue(h.Header[k]))
	}
	fmt.Fprint(cw, "Connection: close\r\n\r\n")
	return cw.n, cw.err
}

// countWriter remembers the first error so the Fprintf calls above can
// stay unchecked.
type countWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

// StatusText returns the reason phrase for the codes this server produces.
func StatusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 301:
		return "Moved Permanently"
	case 400:
		return "Bad Request"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 408:
		return "Request Timeout"
	case 414:
		return "URI Too Long"
	case 431:
		return "Request Header Fields Too Large"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	default:
		return ""
	}
}

// SanitizeHeaderKey ensures header name is a valid token; returns empty string if invalid.
func SanitizeHeaderKey(k string) string {
	if k == "" {
		return ""
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			continue
		}
		switch c {
		case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
			continue
		default:
			return ""
		}
	}
	return k
}

func sanitizeHeaderValue(v string) string {
	if v == "" {
		return v
	}
	// Remove CR/LF and other control chars except HTAB
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0x7f {
			continue
		}
		if c < 0x20 && c != '\t' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
