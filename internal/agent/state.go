package agent

import (
	"sync"

	"github.com/datapilot-ai/datapilot/internal/llm"
)

// State is the conversation state of one session.
type State int

const (
	// StateUnprimed means no model conversation exists for the session.
	StateUnprimed State = iota
	// StatePriming means the system instruction is being sent.
	StatePriming
	// StateTurnLoop means the session is primed and exchanging turns.
	StateTurnLoop
	// StateTerminal means the last turn completed and a response was
	// assembled; the next message re-enters the turn loop.
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateUnprimed:
		return "unprimed"
	case StatePriming:
		return "priming"
	case StateTurnLoop:
		return "turn_loop"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// conversation holds the explicit transcript and state for one session.
// The per-conversation mutex serializes turns on the same session while
// independent sessions interleave freely.
type conversation struct {
	mu         sync.Mutex
	state      State
	transcript []llm.Message
}
