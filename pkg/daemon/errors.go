package daemon

import "errors"

var (
	// ErrBackendSpawnFailed is returned when a per-trace backend subprocess
	// could not be started.
	ErrBackendSpawnFailed = errors.New("BackendSpawnFailed")

	// ErrBackendHandshakeTimeout is returned when the initialize/launch/
	// configurationDone handshake with a freshly spawned backend does not
	// complete in time.
	ErrBackendHandshakeTimeout = errors.New("BackendHandshakeTimeout")

	// ErrUnknownSession is returned for requests naming a trace path or
	// session id the daemon has no record of.
	ErrUnknownSession = errors.New("unknown session")

	// ErrShuttingDown is returned for any new request accepted after
	// ct/daemon-shutdown has begun draining.
	ErrShuttingDown = errors.New("daemon is shutting down")
)
