package motion

import "encoding/json"

// Reaction is the exhibit character's in-character response to a motion
// summary, produced by the reaction LLM call and fed back into persona
// evolution.
type Reaction struct {
	Reply          string          `json:"reply"`
	Interpretation string          `json:"interpretation"`
	State          string          `json:"state"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}
