package client

// State is the client-observable connection state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// validTransition lists the moves the client may make
func validTransition(from, to State) bool {
	switch from {
	case StateDisconnected:
		return to == StateConnecting
	case StateConnecting:
		return to == StateConnected || to == StateDisconnected
	case StateConnected:
		return to == StateReconnecting || to == StateDisconnected
	case StateReconnecting:
		return to == StateConnected || to == StateDisconnected
	}
	return false
}
