package syncer

// State is the orchestrator lifecycle state
type State int32

const (
	StateUninitialized State = iota
	StateAuthenticating
	StateStreaming
	StatePolling
	StateReauthenticating
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAuthenticating:
		return "authenticating"
	case StateStreaming:
		return "streaming"
	case StatePolling:
		return "polling"
	case StateReauthenticating:
		return "reauthenticating"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Ready reports whether the state serves synchronized evaluations
func (s State) Ready() bool {
	return s == StateStreaming || s == StatePolling
}
