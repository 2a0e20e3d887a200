package dispatcher

// State is the monitoring state of a line.
type State int

const (
	// StateIdle means no wait is outstanding: the line was never armed or a one-shot line completed.
	StateIdle State = iota
	// StateArmed means a readiness wait is outstanding.
	StateArmed
	// StateHandling means an event is being processed.
	StateHandling
	// StateStopped means monitoring ended on a wait or decode error.
	StateStopped
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateHandling:
		return "handling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
