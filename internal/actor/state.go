// ABOUTME: Lifecycle states and stop outcomes for background actors.
// ABOUTME: STOPPED is terminal; an actor never leaves it once reached.

package actor

// State is the lifecycle state of an Actor.
type State int

const (
	NotStarted State = iota
	Running
	Suspended
	Stopping
	Stopped
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopResult describes how StopAndWait finished.
type StopResult int

const (
	// StopResultStopped means the actor was already stopped.
	StopResultStopped StopResult = iota
	// StopResultWaited means the actor stopped within the timeout.
	StopResultWaited
	// StopResultTimeout means the timeout elapsed and force was not requested.
	StopResultTimeout
	// StopResultForced means the timeout elapsed and the running tick was abandoned.
	StopResultForced
)

// String returns the lowercase name of the result.
func (r StopResult) String() string {
	switch r {
	case StopResultStopped:
		return "stopped"
	case StopResultWaited:
		return "waited"
	case StopResultTimeout:
		return "timeout"
	case StopResultForced:
		return "forced"
	default:
		return "unknown"
	}
}
