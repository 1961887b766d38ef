package dap

import "errors"

// ErrProtocol is returned for malformed framing or JSON; it closes the
// offending connection.
var ErrProtocol = errors.New("protocol error")
