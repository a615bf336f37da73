package http1

import (
	"errors"
	"io"
)

// ErrLineTooLong is returned by LineReader.Next when a line exceeds MaxLineBytes.
var ErrLineTooLong = errors.New("http1: line too long")

const readChunk = 4 << 10

// LineReader accumulates bytes from a non-blocking source and splits them
// into lines. Terminators are "\n", "\r\n" and a lone "\r"; none of them are
// part of the returned line.
type LineReader struct {
	// MaxLineBytes bounds a single line, terminator excluded. Zero means no limit.
	MaxLineBytes int

	buf []byte
	off int
	eof bool
}

// Fill performs one read from src into the internal buffer. io.EOF is
// recorded and swallowed; every other error is returned as is, so a
// would-block condition from src reaches the caller untouched.
func (r *LineReader) Fill(src io.Reader) error {
	if r.eof {
		return nil
	}
	if r.off > 0 {
		n := copy(r.buf, r.buf[r.off:])
		r.buf = r.buf[:n]
		r.off = 0
	}
	if cap(r.buf)-len(r.buf) < readChunk {
		nb := make([]byte, len(r.buf), len(r.buf)+readChunk)
		copy(nb, r.buf)
		r.buf = nb
	}
	n, err := src.Read(r.buf[len(r.buf):cap(r.buf)])
	r.buf = r.buf[:len(r.buf)+n]
	if err == io.EOF {
		r.eof = true
		return nil
	}
	return err
}

// Next returns the next complete line. ok is false when more input is
// needed. Once EOF has been seen, an unterminated remainder is returned as
// the final line.
func (r *LineReader) Next() (line string, ok bool, err error) {
	data := r.buf[r.off:]
	for i, b := range data {
		if b != '\n' && b != '\r' {
			continue
		}
		if err := r.checkLimit(i); err != nil {
			return "", false, err
		}
		switch b {
		case '\n':
			r.off += i + 1
			return string(data[:i]), true, nil
		case '\r':
			if i+1 < len(data) {
				skip := 1
				if data[i+1] == '\n' {
					skip = 2
				}
				r.off += i + skip
				return string(data[:i]), true, nil
			}
			if r.eof {
				r.off += i + 1
				return string(data[:i]), true, nil
			}
			// Cannot tell "\r\n" from a lone "\r" yet.
			return "", false, nil
		}
	}
	if err := r.checkLimit(len(data)); err != nil {
		return "", false, err
	}
	if r.eof && len(data) > 0 {
		r.off += len(data)
		return string(data), true, nil
	}
	return "", false, nil
}

func (r *LineReader) checkLimit(n int) error {
	if r.MaxLineBytes > 0 && n > r.MaxLineBytes {
		return ErrLineTooLong
	}
	return nil
}

// EOF reports whether the source has signalled end of stream.
func (r *LineReader) EOF() bool { return r.eof }

// Exhausted reports whether the source is closed and every buffered byte
// has been consumed.
func (r *LineReader) Exhausted() bool { return r.eof && r.off == len(r.buf) }

// Buffered returns the number of unconsumed bytes.
func (r *LineReader) Buffered() int { return len(r.buf) - r.off }
