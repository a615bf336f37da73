package http1

import (
	"bytes"
	"testing"
)

func TestResponseHead_Layout(t *testing.T) {
	var buf bytes.Buffer
	h := &ResponseHead{Status: 200, ContentType: "text/plain; charset=utf-8", ContentLength: 5}
	n, err := h.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	want := "HTTP/1.1 200 OK\r\nContent-Type: text/plain; charset=utf-8\r\nContent-Length: 5\r\nConnection: close\r\n\r\n"
	if buf.String() != want {
		t.Fatalf("head=%q\nwant %q", buf.String(), want)
	}
	if n != int64(len(want)) {
		t.Fatalf("n=%d, want %d", n, len(want))
	}
}

func TestResponseHead_ExtraHeaders(t *testing.T) {
	var buf bytes.Buffer
	h := &ResponseHead{
		Status:        301,
		ContentLength: -1,
		Header: map[string]string{
			"Location":   "/sub/\r\nX-Evil: 1",
			"Allow":      "GET",
			"Connection": "keep-alive",
			"Bad Key":    "x",
		},
	}
	if _, err := h.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	want := "HTTP/1.1 301 Moved Permanently\r\nAllow: GET\r\nLocation: /sub/X-Evil: 1\r\nConnection: close\r\n\r\n"
	if buf.String() != want {
		t.Fatalf("head=%q\nwant %q", buf.String(), want)
	}
}

func TestStatusText(t *testing.T) {
	for _, code := range []int{200, 301, 400, 403, 404, 408, 414, 431, 501} {
		if StatusText(code) == "" {
			t.Errorf("no reason for %d", code)
		}
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"index.html":       "text/html; charset=utf-8",
		"page.htm":         "text/html; charset=utf-8",
		"X.HTML":           DefaultContentType,
		"PHOTO.JPG":        DefaultContentType,
		"photo.jpeg":       "image/jpeg",
		"clip.qt":          "video/quicktime",
		"proxy.pac":        "application/x-ns-proxy-autoconfig",
		"song.mp3":         "audio/mpeg",
		"a.txt":            DefaultContentType,
		"Makefile":         DefaultContentType,
		"dir.d/noext":      DefaultContentType,
		"archive.tar.gz":   DefaultContentType,
		"sub/dir/pic.png":  "image/png",
		"sounds/beep.midi": "audio/midi",
	}
	for name, want := range cases {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}
