package locindex

// State is the lifecycle state of an Index.
type State int32

const (
	// StateUninitialized: created, not yet built or loaded.
	StateUninitialized State = iota
	// StateLoading: Build or Load in progress.
	StateLoading
	// StateReady: queries are allowed.
	StateReady
	// StateClosed: released, every operation fails.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
