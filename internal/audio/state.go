package audio

// State represents the lifecycle state of a capture session
type State string

const (
	StateIdle      State = "IDLE"
	StatePreparing State = "PREPARING"
	StateRecording State = "RECORDING"
	StatePaused    State = "PAUSED"
	StateStopping  State = "STOPPING"
	StateStopped   State = "STOPPED"
	StateError     State = "ERROR"
)

// canStart reports whether a new session may be prepared from s
func (s State) canStart() bool {
	return s == StateIdle || s == StateStopped
}

// isActive reports whether a session owns a running capture source
func (s State) isActive() bool {
	return s == StateRecording || s == StatePaused
}
