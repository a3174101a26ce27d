package relay

import (
	"errors"
	"fmt"
)

// ErrShutdown is returned by operations attempted after Shutdown.
var ErrShutdown = errors.New("relay is shut down")

// HandlerError reports a route handler that failed or panicked.
type HandlerError struct {
	Route string
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for route %q: %v", e.Route, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// CloseReason records why a session ended.
type CloseReason string

const (
	ReasonPeerClosed   CloseReason = "peer_closed"
	ReasonMalformed    CloseReason = "malformed"
	ReasonHandlerFault CloseReason = "handler_fault"
	ReasonTransport    CloseReason = "transport_error"
	ReasonShutdown     CloseReason = "shutdown"
)
