package engine

// State is the recognition lifecycle state.
type State int

const (
	Uninitialized State = iota
	DownloadingModel
	ModelReady
	Listening
	Paused
	Error
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case DownloadingModel:
		return "downloading_model"
	case ModelReady:
		return "model_ready"
	case Listening:
		return "listening"
	case Paused:
		return "paused"
	case Error:
		return "error"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// InactiveReason tags why recognition is not running.
type InactiveReason string

const (
	ReasonNone     InactiveReason = ""
	ReasonDisabled InactiveReason = "disabled"
	ReasonLoading  InactiveReason = "loading"
	ReasonNotReady InactiveReason = "not ready"
	ReasonNetwork  InactiveReason = "network unavailable"
)

// Status is the published view of the controller.
type Status struct {
	State State
	// Reason is the error text in the Error state.
	Reason   string
	Inactive InactiveReason
}

// Indicator returns the short key a status indicator renders.
func (s Status) Indicator() string {
	if s.Inactive == ReasonDisabled {
		return "INACTIVE"
	}
	switch s.State {
	case Uninitialized:
		return "INIT"
	case DownloadingModel:
		return "LOADING"
	case ModelReady:
		return "READY"
	case Listening:
		return "LISTENING"
	case Paused:
		return "PAUSED"
	case Error:
		return "ERROR"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}
