package notifyws

// ConnectionState is the lifecycle state of the transport.
type ConnectionState int

const (
	// StateDisconnected is both the initial state and where every failure comes to rest.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means frames flow in both directions.
	StateOpen
	// StateClosing is held while a deliberate disconnect tears the link down.
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}
