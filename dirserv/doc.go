// Package dirserv is a small single-loop HTTP/1.x server for static files
// and directory listings under one document root.
//
// Highlights
//   - One goroutine multiplexes the listener and every connection through
//     epoll; no thread per connection and no locks.
//   - Requests are parsed incrementally from non-blocking sockets. A slow
//     client suspends at a line boundary instead of stalling the loop.
//   - Files are streamed with sendfile and resumed on write readiness.
//   - Paths are confined to the root: ".." segments and escaping symlinks
//     are refused with 403.
//   - Every response ends with Connection: close.
//   - Observability: plug-in obs.Logger and obs.Meter.
//
// Quick start:
//
//	s := &dirserv.Server{Port: 8080, Root: "/srv/www", IdleTimeout: 30 * time.Second}
//	if err := s.ListenAndServe(ctx); err != nil && !errors.Is(err, dirserv.ErrServerClosed) {
//	    log.Fatal(err)
//	}
package dirserv
