package relay

import (
	"errors"
	"fmt"
)

// ProtocolError is a guest message inconsistent with the protocol or
// the binding table. It is fatal to the session; the guest transport
// is closed without a Wayland error event.
type ProtocolError struct {
	ObjectID uint32
	Reason   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation on object %d: %s", e.ObjectID, e.Reason)
}

func protocolErrf(id uint32, format string, args ...any) error {
	return &ProtocolError{ObjectID: id, Reason: fmt.Sprintf(format, args...)}
}

// ErrUnsupported marks a request the relay does not implement.
// Fatal to the session.
var ErrUnsupported = errors.New("unsupported feature")

// HostError wraps a failure of the host connection. It terminates
// the session on both sides.
type HostError struct {
	Err error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host connection failed: %v", e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}

// errCrossInterface is returned by the generic translation functions
// when a binding pairs different interfaces (the GTK/Zwp
// primary-selection case). Callers on that path must use the
// selection relay's own accessors instead.
var errCrossInterface = errors.New("cross-interface binding requires flow-local translation")
