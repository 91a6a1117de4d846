package gateway

import "fmt"

// AuthError means the connect handshake was rejected. Not retried.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gateway auth rejected: %s", e.Message)
}

// ProtocolError means a malformed frame or one inconsistent with the
// connection state. The connection is dropped and the run fails.
type ProtocolError struct {
	State  string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gateway protocol error in state %s: %s", e.State, e.Detail)
}

// RunFailedError means the backend reported a lifecycle error phase.
// Its message is surfaced (truncated) to the user.
type RunFailedError struct {
	Message string
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("agent run failed: %s", e.Message)
}

// TransportError wraps a socket-level failure before completion.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
