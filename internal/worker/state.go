package worker

// State is the worker's lifecycle state.
type State int32

const (
	// StateUninitialized is the state before Run.
	StateUninitialized State = iota
	// StateInitializing means the baseline is loading. Messages are queued.
	StateInitializing
	// StateReady means the engine is built and messages are handled.
	StateReady
	// StateFailed means initialization failed. Queries get error responses.
	StateFailed
	// StateClosed means the channel closed or Run returned.
	StateClosed
)

// String returns a human-readable state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
