package core

import "github.com/dkeye/Stage/internal/domain"

// SessionID identifies one signaling connection and the peer bound to it.
type SessionID = domain.PeerID

// SessionState is the protocol state of a signaling session.
type SessionState int32

const (
	StateConnected SessionState = iota
	StateJoined
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
