package realtime

import "errors"

var (
	ErrSessionClosed = errors.New("session closed")
	ErrUnauthorized  = errors.New("users are not allowed to communicate")
)

// Error codes surfaced to clients in error events.
const (
	CodeInvalidEvent = "INVALID_EVENT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodePeerOffline  = "PEER_OFFLINE"
)
