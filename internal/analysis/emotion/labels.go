package emotion

import "strings"

// Label is an emotion state the rig can express. The reaction endpoint only
// ever emits one of these.
type Label string

const (
	Neutral  Label = "neutral"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Angry    Label = "angry"
	Excited  Label = "excited"
	Tender   Label = "tender"
	Comfort  Label = "comfort"
	Magnetic Label = "magnetic"
)

// Labels lists every accepted state, default first.
func Labels() []Label {
	return []Label{Neutral, Happy, Sad, Angry, Excited, Tender, Comfort, Magnetic}
}

// Default is the state used when a model returns anything unrecognized.
func Default() Label {
	return Neutral
}

// Parse folds and validates a raw label.
func Parse(raw string) (Label, bool) {
	normalized := Label(strings.ToLower(strings.TrimSpace(raw)))
	for _, label := range Labels() {
		if normalized == label {
			return label, true
		}
	}
	return "", false
}

// Clamp maps any raw string onto the accepted set, falling back to Default.
func Clamp(raw string) Label {
	if label, ok := Parse(raw); ok {
		return label
	}
	return Default()
}
