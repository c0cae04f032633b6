package agent

// Capability names one of the three things an agent produces per turn.
type Capability string

const (
	CapabilityThink  Capability = "think"
	CapabilitySpeak  Capability = "speak"
	CapabilityAction Capability = "action"
)

// Capabilities lists the capabilities in the order a turn invokes them.
var Capabilities = []Capability{CapabilityThink, CapabilitySpeak, CapabilityAction}

// TurnResult is the atomic output of one agent in one round.
type TurnResult struct {
	Agent   string `json:"agent"`
	Round   int    `json:"round"`
	Thought string `json:"thought"`
	Speech  string `json:"speech"`
	Action  string `json:"action"`
}

// RoundRecord groups the turn results of a single round in roster order.
// Aborted is set when a turn failed and the remaining agents did not act.
type RoundRecord struct {
	Round   int          `json:"round"`
	Results []TurnResult `json:"results"`
	Aborted bool         `json:"aborted,omitempty"`
}

// Clone returns a copy whose Results slice is not shared.
func (r RoundRecord) Clone() RoundRecord {
	r.Results = append([]TurnResult(nil), r.Results...)
	return r
}

// TurnContext is the frozen snapshot every agent of a round observes.
type TurnContext struct {
	Scene         string            `json:"scene"`
	Round         int               `json:"round"`
	SharedMemory  map[string]string `json:"shared_memory"`
	RecentHistory []RoundRecord     `json:"recent_history"`
}
