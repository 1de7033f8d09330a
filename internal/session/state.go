package session

// State is the session lifecycle position. Transitions only move forward:
// Uninitialized to Ready to Closed, or Uninitialized straight to Closed.
type State int32

const (
	Uninitialized State = iota
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
