package tracker

import "errors"

var (
	// ErrAlreadyRunning is returned by Start unless the service is stopped.
	ErrAlreadyRunning = errors.New("tracker is already running")

	// ErrNotRunning is returned by Stop unless the service is running.
	ErrNotRunning = errors.New("tracker is not running")
)

// State is a lifecycle stage of the Service.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "invalid"
	}
}
