package dirserv

import "errors"

var (
	// ErrServerClosed is returned by Serve after its context is cancelled.
	ErrServerClosed = errors.New("dirserv: server closed")
)
