package etl

// State is one phase of a pipeline run. A run moves strictly forward:
// Idle → Extracting → Transforming → Loading → Succeeded | Failed.
type State string

const (
	StateIdle         State = "idle"
	StateExtracting   State = "extracting"
	StateTransforming State = "transforming"
	StateLoading      State = "loading"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
)

// Terminal reports whether a run in this state is finished.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:         {StateExtracting},
	StateExtracting:   {StateTransforming, StateFailed},
	StateTransforming: {StateLoading},
	StateLoading:      {StateSucceeded, StateFailed},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
